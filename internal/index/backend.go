package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Get returns the stored snapshot bytes of k.
func (db *DB) Get(ctx context.Context, k storage.Key) ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	var data []byte
	err := db.conn.QueryRowContext(ctx,
		`SELECT data FROM snapshots WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, k)
	}
	if err != nil {
		return nil, fmt.Errorf("index: get snapshot: %w", err)
	}
	return data, nil
}

// Put stores the snapshot bytes of k, replacing any previous value.
func (db *DB) Put(ctx context.Context, k storage.Key, data []byte) error {
	if err := k.Validate(); err != nil {
		return err
	}
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO snapshots (project_id, stage_id, document_id, data, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(project_id, stage_id, document_id) DO UPDATE SET
			data       = excluded.data,
			updated_at = excluded.updated_at
	`, k.ProjectID, k.StageID, k.DocumentID, data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index: put snapshot: %w", err)
	}
	return nil
}

// Delete removes the snapshot of k.
func (db *DB) Delete(ctx context.Context, k storage.Key) error {
	if err := k.Validate(); err != nil {
		return err
	}
	res, err := db.conn.ExecContext(ctx,
		`DELETE FROM snapshots WHERE project_id = ? AND stage_id = ? AND document_id = ?`,
		k.ProjectID, k.StageID, k.DocumentID)
	if err != nil {
		return fmt.Errorf("index: delete snapshot: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", apperr.ErrNotFound, k)
	}
	return nil
}

// List returns the keys of stored snapshots. Empty filters match all.
func (db *DB) List(ctx context.Context, projectID, stageID string) ([]storage.Key, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT project_id, stage_id, document_id
		FROM snapshots
		WHERE (? = '' OR project_id = ?) AND (? = '' OR stage_id = ?)
		ORDER BY project_id, stage_id, document_id
	`, projectID, projectID, stageID, stageID)
	if err != nil {
		return nil, fmt.Errorf("index: list snapshots: %w", err)
	}
	defer rows.Close()

	out := []storage.Key{}
	for rows.Next() {
		var k storage.Key
		if err := rows.Scan(&k.ProjectID, &k.StageID, &k.DocumentID); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}
