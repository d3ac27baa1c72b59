package index

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ucdcanvas/internal/storage"
)

// DocumentRow represents a row in the documents table.
type DocumentRow struct {
	Key       storage.Key `json:"key"`
	Checksum  string      `json:"checksum"`
	NodeCount int         `json:"nodeCount"`
	EdgeCount int         `json:"edgeCount"`
	UpdatedAt time.Time   `json:"updatedAt"`
}

// BlockRow is the searchable projection of one node.
type BlockRow struct {
	NodeID    string
	BlockType string
	Label     string
	Body      string
}

// SearchResult represents one search hit.
type SearchResult struct {
	Key       storage.Key `json:"key"`
	NodeID    string      `json:"nodeId"`
	BlockType string      `json:"blockType"`
	Label     string      `json:"label"`
	Snippet   string      `json:"snippet"`
}

// UpsertDocument replaces a document summary and its block rows within a
// transaction.
func (db *DB) UpsertDocument(d DocumentRow, rows []BlockRow) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	k := d.Key
	_, err = tx.Exec(`
		INSERT INTO documents (project_id, stage_id, document_id, checksum, node_count, edge_count, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(project_id, stage_id, document_id) DO UPDATE SET
			checksum   = excluded.checksum,
			node_count = excluded.node_count,
			edge_count = excluded.edge_count,
			updated_at = excluded.updated_at
	`, k.ProjectID, k.StageID, k.DocumentID, d.Checksum, d.NodeCount, d.EdgeCount, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert document: %w", err)
	}

	if err := deleteBlocks(tx, k); err != nil {
		return err
	}
	if len(rows) > 0 {
		stmt, err := tx.Prepare(`
			INSERT OR REPLACE INTO blocks (project_id, stage_id, document_id, node_id, block_type, label, body)
			VALUES (?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare block insert: %w", err)
		}
		defer stmt.Close()
		for _, r := range rows {
			if _, err := stmt.Exec(k.ProjectID, k.StageID, k.DocumentID, r.NodeID, r.BlockType, r.Label, r.Body); err != nil {
				return fmt.Errorf("index: insert block: %w", err)
			}
			// FTS upsert (no-op when FTS5 tag is absent).
			if err := ftsInsert(tx, k, r); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

func deleteBlocks(tx *sql.Tx, k storage.Key) error {
	if err := ftsDelete(tx, k); err != nil {
		return err
	}
	_, err := tx.Exec(`DELETE FROM blocks WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID)
	if err != nil {
		return fmt.Errorf("index: delete blocks: %w", err)
	}
	return nil
}

// DeleteDocument removes a document summary and its blocks.
func (db *DB) DeleteDocument(k storage.Key) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := deleteBlocks(tx, k); err != nil {
		return err
	}
	_, _ = tx.Exec(`DELETE FROM documents WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID)

	return tx.Commit()
}

// GetChecksum returns the stored checksum for a document, or empty string if not found.
func (db *DB) GetChecksum(k storage.Key) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM documents WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// AllChecksums returns the checksum of every indexed document.
func (db *DB) AllChecksums() (map[storage.Key]string, error) {
	rows, err := db.conn.Query(`SELECT project_id, stage_id, document_id, checksum FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[storage.Key]string)
	for rows.Next() {
		var k storage.Key
		var cs string
		if err := rows.Scan(&k.ProjectID, &k.StageID, &k.DocumentID, &cs); err != nil {
			return nil, err
		}
		out[k] = cs
	}
	return out, rows.Err()
}

// ListDocuments returns document summaries, optionally narrowed to one
// project and stage.
func (db *DB) ListDocuments(projectID, stageID string) ([]DocumentRow, error) {
	rows, err := db.conn.Query(`
		SELECT project_id, stage_id, document_id, checksum, node_count, edge_count, updated_at
		FROM documents
		WHERE (? = '' OR project_id = ?) AND (? = '' OR stage_id = ?)
		ORDER BY project_id, stage_id, document_id
	`, projectID, projectID, stageID, stageID)
	if err != nil {
		return nil, fmt.Errorf("index: list documents: %w", err)
	}
	defer rows.Close()

	out := []DocumentRow{}
	for rows.Next() {
		var d DocumentRow
		if err := rows.Scan(&d.Key.ProjectID, &d.Key.StageID, &d.Key.DocumentID,
			&d.Checksum, &d.NodeCount, &d.EdgeCount, &d.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
