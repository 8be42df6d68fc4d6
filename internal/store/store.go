// Package store provides the shared key/value store used for rate-limit
// counters and cached lookup results.
package store

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable is returned when the backing store cannot be reached.
var ErrUnavailable = errors.New("store unavailable")

// Store is a key/value store with per-key expiry.
// Get returns a nil slice and no error when the key is absent.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, val []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Incrementer is implemented by stores that can atomically increment an
// integer counter. The key's expiry is preserved.
type Incrementer interface {
	Incr(ctx context.Context, key string) (int64, error)
}
