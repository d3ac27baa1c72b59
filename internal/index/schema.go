// Package index provides SQLite-backed document storage and block indexing
// with optional FTS5 full-text search.
package index

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

const coreSchemaSQL = `
CREATE TABLE IF NOT EXISTS snapshots (
	project_id  TEXT NOT NULL,
	stage_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	data        BLOB NOT NULL,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, stage_id, document_id)
);

CREATE TABLE IF NOT EXISTS documents (
	project_id  TEXT NOT NULL,
	stage_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	checksum    TEXT NOT NULL DEFAULT '',
	node_count  INTEGER NOT NULL DEFAULT 0,
	edge_count  INTEGER NOT NULL DEFAULT 0,
	updated_at  DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY (project_id, stage_id, document_id)
);

CREATE TABLE IF NOT EXISTS blocks (
	project_id  TEXT NOT NULL,
	stage_id    TEXT NOT NULL,
	document_id TEXT NOT NULL,
	node_id     TEXT NOT NULL,
	block_type  TEXT NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	body        TEXT NOT NULL DEFAULT '',
	UNIQUE(project_id, stage_id, document_id, node_id)
);

CREATE INDEX IF NOT EXISTS idx_blocks_doc ON blocks(project_id, stage_id, document_id);
CREATE INDEX IF NOT EXISTS idx_blocks_type ON blocks(block_type);
`

// DB wraps a sql.DB with index-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(dsn string) (*DB, error) {
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("index: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: ping: %w", err)
	}
	if _, err := conn.Exec(coreSchemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply core schema: %w", err)
	}
	if err := initFTS(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("index: apply fts schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}
