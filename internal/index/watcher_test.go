package index

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/starford/ucdcanvas/internal/storage"
)

// watcherTestEnv sets up a data dir, file backend, and DB for watcher tests.
func watcherTestEnv(t *testing.T) (*storage.FS, *DB) {
	t.Helper()
	store, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return store, testDB(t)
}

// eventually polls fn every tick until it returns true or timeout elapses.
func eventually(t *testing.T, timeout, tick time.Duration, fn func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if fn() {
			return
		}
		time.Sleep(tick)
	}
	t.Error(msg)
}

func writeSnapshot(t *testing.T, store *storage.FS, k storage.Key, data string) string {
	t.Helper()
	p := filepath.Join(store.Root(), filepath.FromSlash(storage.RelPath(k)))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestWatcher_ExternalEditIndexed(t *testing.T) {
	store, db := watcherTestEnv(t)
	_ = os.MkdirAll(filepath.Join(store.Root(), "p1", "s1"), 0o755)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var events []string

	go Watch(ctx, db, store, quietLogger(), func(kind string, k storage.Key) {
		mu.Lock()
		events = append(events, kind+":"+k.String())
		mu.Unlock()
	})

	time.Sleep(100 * time.Millisecond)

	writeSnapshot(t, store, docKey, sampleSnapshot)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(docKey)
		return cs != ""
	}, "new snapshot not indexed by watcher")

	eventually(t, 2*time.Second, 50*time.Millisecond, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) > 0
	}, "expected a watcher callback")
}

func TestWatcher_NewDirWatched(t *testing.T) {
	store, db := watcherTestEnv(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.MkdirAll(filepath.Join(store.Root(), "p1", "s1"), 0o755)
	time.Sleep(200 * time.Millisecond)

	writeSnapshot(t, store, docKey, sampleSnapshot)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(docKey)
		return cs != ""
	}, "snapshot in new directory not indexed by watcher")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	store, db := watcherTestEnv(t)
	p := writeSnapshot(t, store, docKey, sampleSnapshot)
	_ = Sync(context.Background(), db, store, quietLogger())

	if cs, _ := db.GetChecksum(docKey); cs == "" {
		t.Fatal("precondition: snapshot should be indexed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	_ = os.Remove(p)

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		cs, _ := db.GetChecksum(docKey)
		return cs == ""
	}, "deleted snapshot still in index")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	store, db := watcherTestEnv(t)
	p := writeSnapshot(t, store, docKey, sampleSnapshot)
	_ = Sync(context.Background(), db, store, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go Watch(ctx, db, store, quietLogger(), nil)
	time.Sleep(100 * time.Millisecond)

	renamed := storage.Key{ProjectID: "p1", StageID: "s1", DocumentID: "renamed"}
	_ = os.Rename(p, filepath.Join(store.Root(), filepath.FromSlash(storage.RelPath(renamed))))

	eventually(t, 5*time.Second, 50*time.Millisecond, func() bool {
		oldCS, _ := db.GetChecksum(docKey)
		newCS, _ := db.GetChecksum(renamed)
		return oldCS == "" && newCS != ""
	}, "rename reconciliation failed: old key should be removed and new key indexed")
}

func TestWatcher_OwnSaveIsQuiet(t *testing.T) {
	store, db := watcherTestEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := store.Put(ctx, docKey, []byte(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}
	if err := IndexSnapshot(db, docKey, []byte(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}

	var mu sync.Mutex
	calls := 0
	go Watch(ctx, db, store, quietLogger(), func(string, storage.Key) {
		mu.Lock()
		calls++
		mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)

	if err := store.Put(ctx, docKey, []byte(sampleSnapshot)); err != nil {
		t.Fatal(err)
	}
	time.Sleep(400 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if calls != 0 {
		t.Errorf("expected no callbacks for already indexed content, got %d", calls)
	}
}
