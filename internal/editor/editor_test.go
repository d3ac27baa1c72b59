package editor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ucdcanvas/internal/apperr"
	"github.com/starford/ucdcanvas/internal/blocks"
	"github.com/starford/ucdcanvas/internal/canvas"
	"github.com/starford/ucdcanvas/internal/documents"
	"github.com/starford/ucdcanvas/internal/interaction"
	"github.com/starford/ucdcanvas/internal/storage"
)

var key = storage.Key{ProjectID: "p1", StageID: "s1", DocumentID: "d1"}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishDocumentEvent(kind string, _ storage.Key) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind)
}

func (r *recorder) kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

// gatedStore blocks SaveSnapshot until release is closed.
type gatedStore struct {
	*documents.Store
	started chan struct{}
	release chan struct{}
	fail    error
}

func (g *gatedStore) SaveSnapshot(ctx context.Context, k storage.Key, snap canvas.Snapshot) error {
	close(g.started)
	<-g.release
	if g.fail != nil {
		return g.fail
	}
	return g.Store.SaveSnapshot(ctx, k, snap)
}

func newStore() *documents.Store {
	return documents.New(storage.NewMemory(), blocks.Default(), documents.WithLogger(quietLogger()))
}

func newManager(store Persister, opts ...ManagerOption) *Manager {
	opts = append([]ManagerOption{WithLogger(quietLogger())}, opts...)
	return NewManager(store, blocks.Default(), opts...)
}

func addNote(t *testing.T, s *Session) canvas.Node {
	t.Helper()
	var n canvas.Node
	require.NoError(t, s.Do("quick_add", func(c *interaction.Controller) error {
		var err error
		n, err = c.QuickAdd(blocks.Notes)
		return err
	}))
	return n
}

func TestOpenReturnsSingleSession(t *testing.T) {
	m := newManager(newStore())
	a, err := m.Open(context.Background(), key)
	require.NoError(t, err)
	b, err := m.Open(context.Background(), key)
	require.NoError(t, err)
	assert.Same(t, a, b)
	assert.Equal(t, 1, m.Len())

	_, err = m.Open(context.Background(), storage.Key{})
	require.ErrorIs(t, err, apperr.ErrInvalidKey)
}

func TestOpenLoadsStoredDocument(t *testing.T) {
	store := newStore()
	doc := canvas.New(blocks.Default())
	_, _ = doc.AddNode(blocks.UseCase, canvas.Point{X: 5, Y: 5})
	require.NoError(t, store.Save(context.Background(), key, doc))

	s, err := newManager(store).Open(context.Background(), key)
	require.NoError(t, err)
	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, blocks.UseCase, snap.Nodes[0].BlockType)
	assert.False(t, s.Status().Dirty)
}

func TestSaveLifecycle(t *testing.T) {
	rec := &recorder{}
	store := newStore()
	savedAt := time.Date(2026, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600))
	m := newManager(store, WithPublisher(rec), WithClock(func() time.Time { return savedAt }))
	s, err := m.Open(context.Background(), key)
	require.NoError(t, err)

	assert.Equal(t, SaveIdle, s.Status().State)
	addNote(t, s)
	assert.True(t, s.Status().Dirty)

	require.NoError(t, s.Save(context.Background()))
	st := s.Status()
	assert.Equal(t, SaveSucceeded, st.State)
	assert.False(t, st.Dirty)
	assert.Equal(t, savedAt.UTC(), st.SavedAt)

	assert.Equal(t, []string{EventChanged, EventSaving, EventSaved}, rec.kinds())

	doc, found, err := store.Load(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found)
	nodes, _ := doc.Len()
	assert.Equal(t, 1, nodes)
}

func TestSecondSaveWhileInFlightRejected(t *testing.T) {
	g := &gatedStore{Store: newStore(), started: make(chan struct{}), release: make(chan struct{})}
	s, err := newManager(g).Open(context.Background(), key)
	require.NoError(t, err)
	addNote(t, s)

	done := make(chan error, 1)
	go func() { done <- s.Save(context.Background()) }()
	<-g.started

	assert.True(t, s.Status().Saving)
	assert.Equal(t, SavePending, s.Status().State)
	require.ErrorIs(t, s.Save(context.Background()), apperr.ErrSaveInFlight)

	// Edits continue while the save is outstanding.
	addNote(t, s)

	close(g.release)
	require.NoError(t, <-done)

	st := s.Status()
	assert.Equal(t, SaveSucceeded, st.State)
	assert.True(t, st.Dirty, "edit made during the save is not yet persisted")
}

func TestSaveFailureKeepsState(t *testing.T) {
	g := &gatedStore{
		Store:   newStore(),
		started: make(chan struct{}),
		release: make(chan struct{}),
		fail:    errors.New("storage error: disk full"),
	}
	close(g.release)
	rec := &recorder{}
	s, err := newManager(g, WithPublisher(rec)).Open(context.Background(), key)
	require.NoError(t, err)
	n := addNote(t, s)

	require.Error(t, s.Save(context.Background()))
	st := s.Status()
	assert.Equal(t, SaveFailed, st.State)
	assert.Contains(t, st.Error, "disk full")
	assert.True(t, st.Dirty)
	assert.Contains(t, rec.kinds(), EventSaveFailed)

	// The in-memory graph is untouched.
	snap := s.Snapshot()
	require.Len(t, snap.Nodes, 1)
	assert.Equal(t, n.ID, snap.Nodes[0].ID)
}

func TestFailedGestureDoesNotMarkDirty(t *testing.T) {
	s, err := newManager(newStore()).Open(context.Background(), key)
	require.NoError(t, err)

	err = s.Do("connect", func(c *interaction.Controller) error {
		_, err := c.Document().Connect("a", "b")
		return err
	})
	require.ErrorIs(t, err, apperr.ErrUnknownNode)
	assert.False(t, s.Status().Dirty)
}

func TestReplace(t *testing.T) {
	s, err := newManager(newStore()).Open(context.Background(), key)
	require.NoError(t, err)
	addNote(t, s)

	snap := canvas.Snapshot{Nodes: []canvas.Node{{ID: "x", BlockType: blocks.Constraints}}}
	require.NoError(t, s.Replace(snap))
	got := s.Snapshot()
	require.Len(t, got.Nodes, 1)
	assert.Equal(t, "x", got.Nodes[0].ID)

	err = s.Replace(canvas.Snapshot{Nodes: []canvas.Node{{ID: "y", BlockType: "EPIC"}}})
	require.ErrorIs(t, err, apperr.ErrMalformedSnapshot)
	assert.Equal(t, "x", s.Snapshot().Nodes[0].ID, "failed replace keeps the previous graph")
}

func TestReapClosesIdleCleanSessions(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	m := newManager(newStore(), WithIdleTimeout(time.Minute), WithClock(clock))

	clean, err := m.Open(context.Background(), key)
	require.NoError(t, err)
	dirtyKey := storage.Key{ProjectID: "p1", StageID: "s1", DocumentID: "d2"}
	dirty, err := m.Open(context.Background(), dirtyKey)
	require.NoError(t, err)
	addNote(t, dirty)

	assert.Zero(t, m.Reap())
	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Reap())

	_, ok := m.Get(key)
	assert.False(t, ok)
	_, ok = m.Get(dirtyKey)
	assert.True(t, ok)
	_ = clean
}

func TestDelete(t *testing.T) {
	rec := &recorder{}
	store := newStore()
	m := newManager(store, WithPublisher(rec))
	s, err := m.Open(context.Background(), key)
	require.NoError(t, err)
	addNote(t, s)
	require.NoError(t, s.Save(context.Background()))

	require.NoError(t, m.Delete(context.Background(), key))
	assert.Zero(t, m.Len())
	_, found, _ := store.Load(context.Background(), key)
	assert.False(t, found)
	assert.Contains(t, rec.kinds(), EventDeleted)

	require.ErrorIs(t, m.Delete(context.Background(), key), apperr.ErrNotFound)
}

func TestExternalChangeReloadsCleanSession(t *testing.T) {
	rec := &recorder{}
	store := newStore()
	m := newManager(store, WithPublisher(rec))
	s, err := m.Open(context.Background(), key)
	require.NoError(t, err)

	external := canvas.New(blocks.Default())
	_, _ = external.AddNode(blocks.Dependencies, canvas.DefaultPosition)
	require.NoError(t, store.Save(context.Background(), key, external))

	m.ExternalChange(context.Background(), "updated", key)
	assert.Len(t, s.Snapshot().Nodes, 1)
	assert.Contains(t, rec.kinds(), EventReloaded)

	// Unsaved edits are never overwritten.
	addNote(t, s)
	m.ExternalChange(context.Background(), "updated", key)
	assert.Len(t, s.Snapshot().Nodes, 2)
}
