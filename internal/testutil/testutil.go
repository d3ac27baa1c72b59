// Package testutil provides shared test helpers for setting up backends,
// indexes and document stores.
package testutil

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/index"
	"github.com/starford/ucdcanvas/internal/storage"
)

// QuietLogger discards everything.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *index.DB {
	t.Helper()
	db, err := index.Open(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestStore returns a document store over backend with a temporary index.
// A nil backend means an in-memory one.
func TestStore(t *testing.T, backend storage.Backend) *documents.Store {
	t.Helper()
	if backend == nil {
		backend = storage.NewMemory()
	}
	return documents.New(backend, blocks.Default(),
		documents.WithIndex(TestDB(t)),
		documents.WithLogger(QuietLogger()))
}
