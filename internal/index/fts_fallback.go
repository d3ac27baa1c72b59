//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"

	"github.com/starford/ucdcanvas/internal/storage"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; full-text search uses LIKE fallback on the blocks table.
	return nil
}

func ftsInsert(_ *sql.Tx, _ storage.Key, _ BlockRow) error { return nil }

func ftsDelete(_ *sql.Tx, _ storage.Key) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT project_id, stage_id, document_id, node_id, block_type, label, substr(body, 1, 200)
		FROM blocks
		WHERE label LIKE ? OR body LIKE ?
		ORDER BY project_id, stage_id, document_id, node_id
		LIMIT ?
	`, like, like, limit)
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
