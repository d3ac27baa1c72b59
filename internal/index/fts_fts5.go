//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/ucdcanvas/internal/storage"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS blocks_fts USING fts5(
			project_id UNINDEXED,
			stage_id UNINDEXED,
			document_id UNINDEXED,
			node_id UNINDEXED,
			block_type UNINDEXED,
			label,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, k storage.Key, r BlockRow) error {
	_, err := tx.Exec(`
		INSERT INTO blocks_fts (project_id, stage_id, document_id, node_id, block_type, label, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		k.ProjectID, k.StageID, k.DocumentID, r.NodeID, r.BlockType, r.Label, r.Body)
	if err != nil {
		return fmt.Errorf("index: upsert fts: %w", err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, k storage.Key) error {
	_, err := tx.Exec(`DELETE FROM blocks_fts WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID)
	if err != nil {
		return fmt.Errorf("index: delete fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search and returns matching blocks with snippets.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT project_id, stage_id, document_id, node_id, block_type, label,
		       snippet(blocks_fts, 6, '<b>', '</b>', '...', 32)
		FROM blocks_fts
		WHERE blocks_fts MATCH ?
		ORDER BY rank
		LIMIT ?
	`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Key.ProjectID, &r.Key.StageID, &r.Key.DocumentID,
			&r.NodeID, &r.BlockType, &r.Label, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
