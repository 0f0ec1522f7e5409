package kv

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Store is a minimal key-value contract over the durable state layer.
// Records are opaque blobs written and deleted whole, so concurrent
// writers degrade to last-writer-wins per key.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Expire renews a key's TTL without rewriting its value, so a TTL
	// extension can never clobber a concurrent write. Missing keys are
	// a no-op.
	Expire(ctx context.Context, key string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}
