// Package storage defines the durable key/value contract behind the session
// store. The session store is the only component that reads or writes these
// keys; backends are interchangeable persistence mechanisms, never a live
// source of truth for reads after startup.
package storage

import (
	"context"
	"errors"
)

// ErrUnavailable is returned when a backend cannot reach its underlying
// store. Callers treat it as a step-local failure, never as fatal.
var ErrUnavailable = errors.New("storage backend unavailable")

// Store is the durable key/value surface. Implementations must tolerate
// unknown keys: Load reports absence via its bool, not an error.
type Store interface {
	Load(ctx context.Context, key string) ([]byte, bool, error)
	Save(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Watcher is an optional capability for backends shared across contexts:
// fn is invoked with the mutated key whenever another context writes or
// deletes through the same backend. Watch blocks until ctx is cancelled.
type Watcher interface {
	Watch(ctx context.Context, fn func(key string)) error
}
