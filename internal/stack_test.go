package internal

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/interaction"
	"github.com/starford/ucdcanvas/internal/storage"
	"github.com/starford/ucdcanvas/internal/testutil"
)

func testConfig(t *testing.T, backend string) *Config {
	t.Helper()
	dir := t.TempDir()
	cfg := NewDefaultConfig()
	cfg.Storage = StorageConfig{Backend: backend, Path: filepath.Join(dir, "documents")}
	cfg.SQLite.Path = filepath.Join(dir, "index.db")
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return cfg
}

func TestOpenStack_Backends(t *testing.T) {
	for _, backend := range []string{BackendFile, BackendSQLite, BackendMemory} {
		t.Run(backend, func(t *testing.T) {
			ctx := context.Background()
			s, err := Open(ctx, testConfig(t, backend), testutil.QuietLogger())
			if err != nil {
				t.Fatalf("Open: %v", err)
			}
			defer s.Close()

			if (s.FS != nil) != (backend == BackendFile) {
				t.Errorf("FS set = %v for backend %s", s.FS != nil, backend)
			}

			key := storage.Key{ProjectID: "p", StageID: "s", DocumentID: "d"}
			sess, err := s.Sessions.Open(ctx, key)
			if err != nil {
				t.Fatalf("open session: %v", err)
			}
			err = sess.Do("quick_add", func(c *interaction.Controller) error {
				_, e := c.QuickAdd(blocks.Notes)
				return e
			})
			if err != nil {
				t.Fatalf("quick add: %v", err)
			}
			if err := sess.Save(ctx); err != nil {
				t.Fatalf("save: %v", err)
			}

			if err := s.Sync(ctx, testutil.QuietLogger()); err != nil {
				t.Fatalf("Sync: %v", err)
			}
			rows, err := s.Docs.List(ctx, "p", "s")
			if err != nil {
				t.Fatalf("List: %v", err)
			}
			if len(rows) != 1 || rows[0].NodeCount != 1 {
				t.Errorf("rows = %+v", rows)
			}
		})
	}
}

func TestOpenStack_UnknownBackend(t *testing.T) {
	cfg := testConfig(t, BackendMemory)
	cfg.Storage.Backend = "s3"
	if _, err := Open(context.Background(), cfg, testutil.QuietLogger()); err == nil {
		t.Fatal("unknown backend should fail")
	}
}
