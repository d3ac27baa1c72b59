package editor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/metrics"
	"github.com/starford/ucdcanvas/internal/storage"
)

// DefaultIdleTimeout is how long a clean session stays open unused.
const DefaultIdleTimeout = 30 * time.Minute

// Manager maps document keys to their single open Session.
type Manager struct {
	store       Persister
	reg         *blocks.Registry
	pub         Publisher
	logger      *slog.Logger
	metrics     *metrics.Metrics
	idleTimeout time.Duration
	now         func() time.Time

	mu       sync.Mutex
	sessions map[storage.Key]*Session
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithPublisher sends document events to p.
func WithPublisher(p Publisher) ManagerOption {
	return func(m *Manager) {
		if p != nil {
			m.pub = p
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = l }
}

// WithMetrics records session and gesture counts on mt.
func WithMetrics(mt *metrics.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = mt }
}

// WithIdleTimeout sets how long a clean session may stay unused before
// Reap closes it.
func WithIdleTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.idleTimeout = d
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// NewManager returns a manager saving through store.
func NewManager(store Persister, reg *blocks.Registry, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		reg:         reg,
		pub:         nopPublisher{},
		logger:      slog.Default(),
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
		sessions:    make(map[storage.Key]*Session),
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open returns the session for key, loading the stored document or
// starting an empty one.
func (m *Manager) Open(ctx context.Context, key storage.Key) (*Session, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if s, ok := m.Get(key); ok {
		return s, nil
	}

	doc, found, err := m.store.Load(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found {
		doc = canvas.New(m.reg)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[key]; ok {
		return s, nil
	}
	s := newSession(key, doc, m)
	m.sessions[key] = s
	m.metrics.SessionOpened()
	m.logger.Debug("editor: session opened",
		slog.String("key", key.String()),
		slog.String("session", s.id.String()),
		slog.Bool("found", found))
	return s, nil
}

// Get returns the open session for key, if any.
func (m *Manager) Get(key storage.Key) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	return s, ok
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Delete closes the session for key and removes the stored document.
func (m *Manager) Delete(ctx context.Context, key storage.Key) error {
	if err := key.Validate(); err != nil {
		return err
	}
	_, open := m.close(key)
	err := m.store.Delete(ctx, key)
	if errors.Is(err, apperr.ErrNotFound) && open {
		err = nil
	}
	if err != nil {
		return err
	}
	m.pub.PublishDocumentEvent(EventDeleted, key)
	return nil
}

func (m *Manager) close(key storage.Key) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[key]
	if ok {
		delete(m.sessions, key)
		m.metrics.SessionClosed()
	}
	return s, ok
}

// Reap closes sessions idle for longer than the idle timeout. Sessions with
// unsaved edits or a running save are kept. It returns the number closed.
func (m *Manager) Reap() int {
	cutoff := m.now().Add(-m.idleTimeout)

	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for k, s := range m.sessions {
		last, busy := s.idleSince()
		if busy || last.After(cutoff) {
			continue
		}
		delete(m.sessions, k)
		m.metrics.SessionClosed()
		n++
		m.logger.Debug("editor: session reaped", slog.String("key", k.String()))
	}
	return n
}

// RunReaper calls Reap every interval until ctx is cancelled.
func (m *Manager) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := m.Reap(); n > 0 {
				m.logger.Info("editor: reaped idle sessions", slog.Int("count", n))
			}
		}
	}
}

// ExternalChange reacts to a document changed outside the editor: a clean
// open session is reloaded, or closed when the document was deleted.
// Sessions with unsaved edits keep their state.
func (m *Manager) ExternalChange(ctx context.Context, kind string, key storage.Key) {
	s, ok := m.Get(key)
	if !ok {
		m.pub.PublishDocumentEvent(kind, key)
		return
	}
	if kind == EventDeleted {
		if _, busy := s.idleSince(); !busy {
			m.close(key)
		}
		m.pub.PublishDocumentEvent(EventDeleted, key)
		return
	}
	reloaded, err := s.reload(ctx)
	if err != nil {
		m.logger.Warn("editor: reload failed", slog.String("key", key.String()), slog.String("error", err.Error()))
		return
	}
	if reloaded {
		m.pub.PublishDocumentEvent(EventReloaded, key)
	}
}
