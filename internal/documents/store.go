// Package documents persists canvas documents: it serialises a document to
// its snapshot form, writes it through a storage.Backend and keeps the
// search index in step.
package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/checksum"
	"github.com/starford/ucdcanvas/internal/index"
	"github.com/starford/ucdcanvas/internal/metrics"
	"github.com/starford/ucdcanvas/internal/storage"
)

// Store is the persistence adapter for documents. Writes to the same key
// are serialised; concurrent loads of the same key share one backend read.
type Store struct {
	backend storage.Backend
	index   index.DocumentIndex
	reg     *blocks.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics

	loads singleflight.Group

	locksMu sync.Mutex
	locks   map[storage.Key]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// Option configures a Store.
type Option func(*Store)

// WithIndex keeps idx updated on every save and delete.
func WithIndex(idx index.DocumentIndex) Option {
	return func(s *Store) { s.index = idx }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithMetrics records save and load outcomes on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// New creates a store over backend. Restored documents are validated
// against reg.
func New(backend storage.Backend, reg *blocks.Registry, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		reg:     reg,
		logger:  slog.Default(),
		locks:   make(map[storage.Key]*keyLock),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Registry returns the block registry documents are restored against.
func (s *Store) Registry() *blocks.Registry { return s.reg }

// Save writes the full document under key, replacing what was stored.
func (s *Store) Save(ctx context.Context, key storage.Key, doc *canvas.Document) error {
	return s.SaveSnapshot(ctx, key, doc.Snapshot())
}

// SaveSnapshot writes snap under key. Failures wrap apperr.ErrStorage; an
// index update failure is logged and does not fail the save.
func (s *Store) SaveSnapshot(ctx context.Context, key storage.Key, snap canvas.Snapshot) error {
	if err := key.Validate(); err != nil {
		return err
	}
	data, err := snap.Marshal()
	if err != nil {
		return fmt.Errorf("%w: encode %s: %w", apperr.ErrStorage, key, err)
	}

	unlock := s.lock(key)
	defer unlock()

	start := time.Now()
	err = s.backend.Put(ctx, key, data)
	s.metrics.ObserveSave(time.Since(start), err)
	if err != nil {
		s.logger.Error("documents: save failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}

	if s.index != nil {
		row, rows := index.Rows(key, snap)
		row.Checksum = checksum.Sum(data)
		if err := s.index.UpsertDocument(row, rows); err != nil {
			s.logger.Warn("documents: index update failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		}
	}
	s.logger.Debug("documents: saved", slog.String("key", key.String()), slog.Int("bytes", len(data)))
	return nil
}

// Load returns the stored document for key. An absent, malformed or
// partially shaped record reports found=false with a nil error so the
// caller starts empty. Backend read failures wrap apperr.ErrStorage.
func (s *Store) Load(ctx context.Context, key storage.Key) (*canvas.Document, bool, error) {
	if err := key.Validate(); err != nil {
		return nil, false, err
	}
	v, err, _ := s.loads.Do(storage.RelPath(key), func() (any, error) {
		return s.read(ctx, key)
	})
	if err != nil {
		return nil, false, err
	}
	doc, _ := v.(*canvas.Document)
	if doc == nil {
		return nil, false, nil
	}
	// Coalesced callers share doc; each gets its own copy to edit.
	return doc.Clone(), true, nil
}

// read fetches and restores a document. A nil document means not found.
func (s *Store) read(ctx context.Context, key storage.Key) (*canvas.Document, error) {
	data, err := s.backend.Get(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) {
		s.metrics.ObserveLoad(metrics.LoadAbsent)
		return nil, nil
	}
	if err != nil {
		s.metrics.ObserveLoad(metrics.LoadError)
		s.logger.Error("documents: load failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}

	snap, err := canvas.DecodeSnapshot(data)
	if err == nil {
		var doc *canvas.Document
		if doc, err = canvas.Restore(s.reg, snap); err == nil {
			s.metrics.ObserveLoad(metrics.LoadFound)
			return doc, nil
		}
	}
	s.metrics.ObserveLoad(metrics.LoadMalformed)
	s.logger.Warn("documents: discarding malformed snapshot",
		slog.String("key", key.String()),
		slog.String("error", err.Error()))
	return nil, nil
}

// Delete removes the stored document and its index entry.
func (s *Store) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	unlock := s.lock(key)
	defer unlock()

	err := s.backend.Delete(ctx, key)
	if err != nil && !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	if s.index != nil {
		if ierr := s.index.DeleteDocument(key); ierr != nil {
			s.logger.Warn("documents: index delete failed", slog.String("key", key.String()), slog.String("error", ierr.Error()))
		}
	}
	return err
}

// List returns document summaries for a project and stage. Without an
// index only the keys are filled in.
func (s *Store) List(ctx context.Context, projectID, stageID string) ([]index.DocumentRow, error) {
	if s.index != nil {
		return s.index.ListDocuments(projectID, stageID)
	}
	keys, err := s.backend.List(ctx, projectID, stageID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrStorage, err)
	}
	out := make([]index.DocumentRow, 0, len(keys))
	for _, k := range keys {
		out = append(out, index.DocumentRow{Key: k})
	}
	return out, nil
}

// Search looks up blocks by text. Without an index it returns nothing.
func (s *Store) Search(query string, limit int) ([]index.SearchResult, error) {
	if s.index == nil || query == "" {
		return []index.SearchResult{}, nil
	}
	return s.index.Search(query, limit)
}

func (s *Store) lock(key storage.Key) func() {
	s.locksMu.Lock()
	l, ok := s.locks[key]
	if !ok {
		l = &keyLock{}
		s.locks[key] = l
	}
	l.refs++
	s.locksMu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		s.locksMu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(s.locks, key)
		}
		s.locksMu.Unlock()
	}
}
