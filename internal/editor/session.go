// Package editor owns the open documents. Each document has exactly one
// Session; gestures on it are serialised by the session and saves run
// without blocking further edits.
package editor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/interaction"
	"github.com/starford/ucdcanvas/internal/metrics"
	"github.com/starford/ucdcanvas/internal/storage"
)

// SaveState is the lifecycle of the most recent save.
type SaveState string

const (
	SaveIdle      SaveState = "idle"
	SavePending   SaveState = "pending"
	SaveSucceeded SaveState = "succeeded"
	SaveFailed    SaveState = "failed"
)

// Document event kinds.
const (
	EventSaving     = "saving"
	EventSaved      = "saved"
	EventSaveFailed = "save_failed"
	EventChanged    = "changed"
	EventDeleted    = "deleted"
	EventReloaded   = "reloaded"
)

// Status is the save state shown next to the save control.
type Status struct {
	State   SaveState `json:"state"`
	Error   string    `json:"error,omitempty"`
	SavedAt time.Time `json:"savedAt,omitzero"`
	Dirty   bool      `json:"dirty"`
	Saving  bool      `json:"saving"`
}

// Persister is the storage the editor saves to and loads from.
type Persister interface {
	SaveSnapshot(ctx context.Context, key storage.Key, snap canvas.Snapshot) error
	Load(ctx context.Context, key storage.Key) (*canvas.Document, bool, error)
	Delete(ctx context.Context, key storage.Key) error
}

// Publisher receives document lifecycle events.
type Publisher interface {
	PublishDocumentEvent(kind string, key storage.Key)
}

type nopPublisher struct{}

func (nopPublisher) PublishDocumentEvent(string, storage.Key) {}

// Session is the single owner of one open document.
type Session struct {
	id  uuid.UUID
	key storage.Key

	store   Persister
	pub     Publisher
	reg     *blocks.Registry
	logger  *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	saving atomic.Bool

	mu           sync.Mutex
	doc          *canvas.Document
	ctrl         *interaction.Controller
	version      uint64
	savedVersion uint64
	status       Status
	lastActive   time.Time
}

func newSession(key storage.Key, doc *canvas.Document, m *Manager) *Session {
	return &Session{
		id:         uuid.New(),
		key:        key,
		store:      m.store,
		pub:        m.pub,
		reg:        m.reg,
		logger:     m.logger.With(slog.String("key", key.String())),
		metrics:    m.metrics,
		now:        m.now,
		doc:        doc,
		ctrl:       interaction.NewController(doc, m.logger),
		status:     Status{State: SaveIdle},
		lastActive: m.now(),
	}
}

// ID identifies this session instance.
func (s *Session) ID() uuid.UUID { return s.id }

// Key returns the document key.
func (s *Session) Key() storage.Key { return s.key }

// Do runs the gesture fn with exclusive access to the document. A nil
// error marks the document changed.
func (s *Session) Do(kind string, fn func(*interaction.Controller) error) error {
	s.mu.Lock()
	err := fn(s.ctrl)
	s.lastActive = s.now()
	if err == nil {
		s.version++
	}
	s.mu.Unlock()

	if err == nil {
		s.metrics.Gesture(kind)
		s.pub.PublishDocumentEvent(EventChanged, s.key)
	}
	return err
}

// View runs fn with exclusive access without marking the document changed.
func (s *Session) View(fn func(*interaction.Controller)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastActive = s.now()
	fn(s.ctrl)
}

// Snapshot returns the current graph.
func (s *Session) Snapshot() canvas.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Snapshot()
}

// Status returns the save state.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status
	st.Dirty = s.version != s.savedVersion
	st.Saving = s.saving.Load()
	return st
}

// Save writes the current graph. Only one save runs at a time; a second
// request while one is outstanding fails with apperr.ErrSaveInFlight.
// Edits may continue while the write is in progress.
func (s *Session) Save(ctx context.Context) error {
	if !s.saving.CompareAndSwap(false, true) {
		return apperr.ErrSaveInFlight
	}
	defer s.saving.Store(false)

	s.mu.Lock()
	snap := s.doc.Snapshot()
	v := s.version
	s.status.State = SavePending
	s.status.Error = ""
	s.lastActive = s.now()
	s.mu.Unlock()
	s.pub.PublishDocumentEvent(EventSaving, s.key)

	err := s.store.SaveSnapshot(ctx, s.key, snap)

	s.mu.Lock()
	if err != nil {
		s.status.State = SaveFailed
		s.status.Error = err.Error()
	} else {
		s.status.State = SaveSucceeded
		s.status.SavedAt = s.now().UTC()
		s.savedVersion = v
	}
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("editor: save failed", slog.String("error", err.Error()))
		s.pub.PublishDocumentEvent(EventSaveFailed, s.key)
		return err
	}
	s.logger.Info("editor: saved", slog.Int("nodes", len(snap.Nodes)), slog.Int("edges", len(snap.Edges)))
	s.pub.PublishDocumentEvent(EventSaved, s.key)
	return nil
}

// Replace swaps the whole graph for snap. The previous graph is kept when
// snap cannot be restored.
func (s *Session) Replace(snap canvas.Snapshot) error {
	doc, err := canvas.Restore(s.reg, snap)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.swap(doc)
	s.version++
	s.mu.Unlock()
	s.pub.PublishDocumentEvent(EventChanged, s.key)
	return nil
}

// reload replaces a clean session with the stored document. It reports
// false and leaves the session alone when it has unsaved edits or a save is
// running.
func (s *Session) reload(ctx context.Context) (bool, error) {
	if s.saving.Load() {
		return false, nil
	}
	doc, found, err := s.store.Load(ctx, s.key)
	if err != nil {
		return false, fmt.Errorf("editor: reload %s: %w", s.key, err)
	}
	if !found {
		doc = canvas.New(s.reg)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != s.savedVersion || s.saving.Load() {
		return false, nil
	}
	s.swap(doc)
	return true, nil
}

func (s *Session) swap(doc *canvas.Document) {
	sel := s.ctrl.Selection()
	s.doc = doc
	s.ctrl = interaction.NewController(doc, s.logger)
	if sel != "" {
		if _, ok := doc.Node(sel); ok {
			_, _ = s.ctrl.Click(interaction.Target{Region: interaction.RegionNodeBody, NodeID: sel})
		}
	}
}

func (s *Session) idleSince() (time.Time, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive, s.version != s.savedVersion || s.saving.Load()
}
