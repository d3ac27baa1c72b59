package index

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/ucdcanvas/internal/storage"
)

// EventCallback is called after a watcher-driven index change.
// kind is one of "created", "updated", "deleted".
type EventCallback func(kind string, key storage.Key)

// Watch starts an fsnotify watcher on the file backend root and re-indexes
// snapshots edited outside the service until ctx is cancelled. It calls cb
// (if non-nil) after each index change. Writes whose content is already
// indexed, such as the service's own saves, produce no callback.
//
// New project and stage directories are added to the watch list as they
// appear. Rename events trigger a reconciliation pass.
func Watch(ctx context.Context, db DocumentIndex, store *storage.FS, logger *slog.Logger, cb EventCallback) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	root := store.Root()
	if err := addDirsRecursive(w, root); err != nil {
		return err
	}

	logger.Info("watcher: started", slog.String("root", root))

	var reconcileTimer *time.Timer
	var reconcileCh <-chan time.Time

	scheduleReconcile := func() {
		if reconcileTimer == nil {
			reconcileTimer = time.NewTimer(200 * time.Millisecond)
			reconcileCh = reconcileTimer.C
		} else {
			reconcileTimer.Reset(200 * time.Millisecond)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if reconcileTimer != nil {
				reconcileTimer.Stop()
			}
			logger.Info("watcher: stopped")
			return nil

		case <-reconcileCh:
			reconcile(ctx, db, store, logger, cb)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			absPath := ev.Name

			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(absPath); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, absPath); addErr != nil {
						logger.Warn("watcher: add new dir failed",
							slog.String("path", absPath),
							slog.String("error", addErr.Error()))
					}
					indexNewDir(ctx, db, store, absPath, logger, cb)
					continue
				}
			}

			rel, relErr := filepath.Rel(root, absPath)
			if relErr != nil {
				continue
			}
			k, ok := storage.KeyFromPath(rel)
			if !ok {
				continue
			}

			switch {
			case ev.Op&(fsnotify.Create|fsnotify.Write) != 0:
				kind := "updated"
				if ev.Op&fsnotify.Create != 0 {
					kind = "created"
				}
				apply(ctx, db, store, k, kind, logger, cb)

			case ev.Op&fsnotify.Remove != 0:
				apply(ctx, db, store, k, "deleted", logger, cb)

			case ev.Op&fsnotify.Rename != 0:
				// fsnotify fires Rename on the old path only; the new path
				// arrives as a Create if it stays inside a watched dir.
				apply(ctx, db, store, k, "deleted", logger, cb)
				scheduleReconcile()
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func apply(ctx context.Context, db DocumentIndex, store storage.Backend, k storage.Key, kind string, logger *slog.Logger, cb EventCallback) {
	changed, err := Reindex(ctx, db, store, k)
	if err != nil {
		logger.Warn("watcher: index failed", slog.String("key", k.String()), slog.String("error", err.Error()))
		return
	}
	if !changed {
		return
	}
	logger.Debug("watcher: indexed", slog.String("key", k.String()), slog.String("op", kind))
	if cb != nil {
		cb(kind, k)
	}
}

// reconcile removes index entries without a stored document and indexes
// stored documents whose checksum differs.
func reconcile(ctx context.Context, db DocumentIndex, store storage.Backend, logger *slog.Logger, cb EventCallback) {
	checksums, err := db.AllChecksums()
	if err != nil {
		logger.Warn("reconcile: all checksums failed", slog.String("error", err.Error()))
		return
	}
	keys, err := store.List(ctx, "", "")
	if err != nil {
		logger.Warn("reconcile: list failed", slog.String("error", err.Error()))
		return
	}

	present := make(map[storage.Key]struct{}, len(keys))
	for _, k := range keys {
		present[k] = struct{}{}
		kind := "updated"
		if _, known := checksums[k]; !known {
			kind = "created"
		}
		apply(ctx, db, store, k, kind, logger, cb)
	}
	for k := range checksums {
		if _, ok := present[k]; !ok {
			apply(ctx, db, store, k, "deleted", logger, cb)
		}
	}
}

// indexNewDir indexes any snapshots found in a newly created directory.
func indexNewDir(ctx context.Context, db DocumentIndex, store *storage.FS, dirPath string, logger *slog.Logger, cb EventCallback) {
	_ = filepath.WalkDir(dirPath, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return nil
		}
		rel, relErr := filepath.Rel(store.Root(), path)
		if relErr != nil {
			return nil
		}
		if k, ok := storage.KeyFromPath(rel); ok {
			apply(ctx, db, store, k, "created", logger, cb)
		}
		return nil
	})
}

// addDirsRecursive adds root and all its subdirectories to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}
