package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/checksum"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Sync walks the backend and brings the index up to date:
//   - new/changed documents are decoded and upserted
//   - documents removed from the backend are deleted from the index
func Sync(ctx context.Context, db DocumentIndex, backend storage.Backend, logger *slog.Logger) error {
	keys, err := backend.List(ctx, "", "")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	present := make(map[storage.Key]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}

		data, err := backend.Get(ctx, k)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("key", k.String()), slog.String("error", err.Error()))
			continue
		}
		if checksums[k] == checksum.Sum(data) {
			continue
		}
		if err := IndexSnapshot(db, k, data); err != nil {
			logger.Warn("sync: index failed", slog.String("key", k.String()), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("key", k.String()))
		}
	}

	// Remove stale entries.
	for k := range checksums {
		if _, ok := present[k]; !ok {
			if err := db.DeleteDocument(k); err != nil {
				logger.Warn("sync: delete failed", slog.String("key", k.String()), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("key", k.String()))
			}
		}
	}

	return nil
}

// IndexSnapshot decodes persisted snapshot bytes and upserts their
// summary and block rows.
func IndexSnapshot(db DocumentIndex, k storage.Key, data []byte) error {
	snap, err := canvas.DecodeSnapshot(data)
	if err != nil {
		return err
	}
	row, rows := Rows(k, snap)
	row.Checksum = checksum.Sum(data)
	return db.UpsertDocument(row, rows)
}

// Rows projects a snapshot onto index rows. The checksum is left empty.
func Rows(k storage.Key, snap canvas.Snapshot) (DocumentRow, []BlockRow) {
	out := make([]BlockRow, 0, len(snap.Nodes))
	for _, n := range snap.Nodes {
		out = append(out, BlockRow{
			NodeID:    n.ID,
			BlockType: string(n.BlockType),
			Label:     n.Label,
			Body:      blockText(n),
		})
	}
	return DocumentRow{
		Key:       k,
		NodeCount: len(snap.Nodes),
		EdgeCount: len(snap.Edges),
		UpdatedAt: time.Now().UTC(),
	}, out
}

// blockText joins the non-empty text values of a node in schema order.
func blockText(n canvas.Node) string {
	var parts []string
	for _, f := range blocks.Render(n.BlockType, n.Content) {
		if s, ok := f.Value.(string); ok && s != "" && f.Kind != blocks.KindEnum {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "\n")
}

// Reindex re-reads k from backend and updates the index, removing the
// entry when the document is gone. It reports whether anything changed.
func Reindex(ctx context.Context, db DocumentIndex, backend storage.Backend, k storage.Key) (bool, error) {
	data, err := backend.Get(ctx, k)
	if errors.Is(err, apperr.ErrNotFound) {
		cs, _ := db.GetChecksum(k)
		if cs == "" {
			return false, nil
		}
		return true, db.DeleteDocument(k)
	}
	if err != nil {
		return false, fmt.Errorf("index: reindex %s: %w", k, err)
	}
	if cs, _ := db.GetChecksum(k); cs == checksum.Sum(data) {
		return false, nil
	}
	return true, IndexSnapshot(db, k, data)
}
