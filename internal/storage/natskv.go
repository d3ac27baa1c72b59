package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/nats-io/nats.go/jetstream"
)

// KeyValue is the subset of jetstream.KeyValue the NATS backend uses.
type KeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
	Keys(ctx context.Context, opts ...jetstream.WatchOpt) ([]string, error)
}

// NATSKV implements Backend on a JetStream key-value bucket. Each key part
// is base64url-encoded so arbitrary ids form valid subject tokens.
type NATSKV struct {
	kv KeyValue
}

// NewNATSKV wraps an existing bucket.
func NewNATSKV(kv KeyValue) *NATSKV {
	return &NATSKV{kv: kv}
}

// OpenNATSKV binds to bucket, creating it when it does not exist yet.
func OpenNATSKV(ctx context.Context, js jetstream.JetStream, bucket string) (*NATSKV, error) {
	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return NewNATSKV(kv), nil
	}
	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "ucdcanvas document snapshots",
		History:     5,
	})
	if err != nil {
		return nil, fmt.Errorf("storage: create kv bucket %s: %w", bucket, err)
	}
	return NewNATSKV(kv), nil
}

var tokenEncoding = base64.RawURLEncoding

func kvKey(k Key) string {
	return strings.Join([]string{
		tokenEncoding.EncodeToString([]byte(k.ProjectID)),
		tokenEncoding.EncodeToString([]byte(k.StageID)),
		tokenEncoding.EncodeToString([]byte(k.DocumentID)),
	}, ".")
}

func parseKVKey(s string) (Key, bool) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Key{}, false
	}
	var decoded [3]string
	for i, p := range parts {
		b, err := tokenEncoding.DecodeString(p)
		if err != nil {
			return Key{}, false
		}
		decoded[i] = string(b)
	}
	return Key{ProjectID: decoded[0], StageID: decoded[1], DocumentID: decoded[2]}, true
}

func (n *NATSKV) Get(ctx context.Context, k Key) ([]byte, error) {
	if err := k.Validate(); err != nil {
		return nil, err
	}
	entry, err := n.kv.Get(ctx, kvKey(k))
	if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
		return nil, notFound(k)
	}
	if err != nil {
		return nil, fmt.Errorf("storage: kv get %s: %w", k, err)
	}
	return entry.Value(), nil
}

func (n *NATSKV) Put(ctx context.Context, k Key, data []byte) error {
	if err := k.Validate(); err != nil {
		return err
	}
	if _, err := n.kv.Put(ctx, kvKey(k), data); err != nil {
		return fmt.Errorf("storage: kv put %s: %w", k, err)
	}
	return nil
}

// Delete places a delete marker. A key that is already absent reports
// apperr.ErrNotFound.
func (n *NATSKV) Delete(ctx context.Context, k Key) error {
	if _, err := n.Get(ctx, k); err != nil {
		return err
	}
	if err := n.kv.Delete(ctx, kvKey(k)); err != nil {
		return fmt.Errorf("storage: kv delete %s: %w", k, err)
	}
	return nil
}

func (n *NATSKV) List(ctx context.Context, projectID, stageID string) ([]Key, error) {
	keys, err := n.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return []Key{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage: kv keys: %w", err)
	}
	out := make([]Key, 0, len(keys))
	for _, s := range keys {
		k, ok := parseKVKey(s)
		if !ok || !matches(k, projectID, stageID) {
			continue
		}
		out = append(out, k)
	}
	slices.SortFunc(out, compareKeys)
	return out, nil
}
