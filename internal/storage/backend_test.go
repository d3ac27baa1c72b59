package storage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/ucdcanvas/internal/apperr"
)

type fakeEntry struct {
	key   string
	value []byte
}

func (e fakeEntry) Bucket() string                  { return "test" }
func (e fakeEntry) Key() string                     { return e.key }
func (e fakeEntry) Value() []byte                   { return e.value }
func (e fakeEntry) Revision() uint64                { return 1 }
func (e fakeEntry) Created() time.Time              { return time.Time{} }
func (e fakeEntry) Delta() uint64                   { return 0 }
func (e fakeEntry) Operation() jetstream.KeyValueOp { return jetstream.KeyValuePut }

type fakeKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newFakeKV() *fakeKV { return &fakeKV{data: map[string][]byte{}} }

func (f *fakeKV) Get(_ context.Context, key string) (jetstream.KeyValueEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	if !ok {
		return nil, jetstream.ErrKeyNotFound
	}
	return fakeEntry{key: key, value: v}, nil
}

func (f *fakeKV) Put(_ context.Context, key string, value []byte) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.data[key] = value
	return 1, nil
}

func (f *fakeKV) Delete(_ context.Context, key string, _ ...jetstream.KVDeleteOpt) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.data, key)
	return nil
}

func (f *fakeKV) Keys(_ context.Context, _ ...jetstream.WatchOpt) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.data) == 0 {
		return nil, jetstream.ErrNoKeysFound
	}
	out := make([]string, 0, len(f.data))
	for k := range f.data {
		out = append(out, k)
	}
	return out, nil
}

func backends(t *testing.T) map[string]Backend {
	t.Helper()
	return map[string]Backend{
		"fs":     tempRoot(t),
		"memory": NewMemory(),
		"natskv": NewNATSKV(newFakeKV()),
	}
}

func TestBackendContract(t *testing.T) {
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			a := Key{"proj", "s.1", "doc a"}
			c := Key{"proj", "s_2", "doc-c"}

			keys, err := b.List(ctx, "", "")
			require.NoError(t, err)
			assert.Empty(t, keys)

			_, err = b.Get(ctx, a)
			require.ErrorIs(t, err, apperr.ErrNotFound)

			require.NoError(t, b.Put(ctx, a, []byte("one")))
			require.NoError(t, b.Put(ctx, a, []byte("two")))
			require.NoError(t, b.Put(ctx, c, []byte("three")))

			got, err := b.Get(ctx, a)
			require.NoError(t, err)
			assert.Equal(t, "two", string(got))

			keys, err = b.List(ctx, "proj", "")
			require.NoError(t, err)
			assert.Equal(t, []Key{a, c}, keys)

			keys, err = b.List(ctx, "proj", "s_2")
			require.NoError(t, err)
			assert.Equal(t, []Key{c}, keys)

			require.NoError(t, b.Delete(ctx, a))
			require.ErrorIs(t, b.Delete(ctx, a), apperr.ErrNotFound)
			_, err = b.Get(ctx, a)
			require.ErrorIs(t, err, apperr.ErrNotFound)

			require.ErrorIs(t, b.Put(ctx, Key{}, []byte("x")), apperr.ErrInvalidKey)
		})
	}
}

func TestMemoryCopiesData(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	buf := []byte("abc")
	require.NoError(t, m.Put(ctx, key, buf))
	buf[0] = 'z'
	got, _ := m.Get(ctx, key)
	assert.Equal(t, "abc", string(got))
}

func TestKVKeyEncoding(t *testing.T) {
	k := Key{"p.1", "s*2", "d>3"}
	enc := kvKey(k)
	assert.Regexp(t, `^[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`, enc)
	got, ok := parseKVKey(enc)
	require.True(t, ok)
	assert.Equal(t, k, got)

	_, ok = parseKVKey("only.two")
	assert.False(t, ok)
}
