// Package memory provides a process-local storage backend. It is the default
// for tests and for wirings that do not need persistence across restarts.
package memory

import (
	"context"
	"sync"

	"github.com/kvartin/bindflow/storage"
)

// Store is an in-memory storage.Store. It also implements storage.Watcher so
// tests can exercise the cross-context change signal without a shared
// backend: NotifyExternal simulates a mutation made elsewhere.
type Store struct {
	mu       sync.Mutex
	values   map[string][]byte
	watchers []func(key string)
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{values: make(map[string][]byte)}
}

// Load implements storage.Store.
func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, false, nil
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true, nil
}

// Save implements storage.Store.
func (s *Store) Save(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v
	return nil
}

// Delete implements storage.Store. Deleting an absent key is a no-op.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, key)
	return nil
}

// Watch implements storage.Watcher. Local Save/Delete calls do not fire fn;
// only NotifyExternal does, matching the semantics of a real shared backend
// where a context never observes its own writes as external changes.
func (s *Store) Watch(ctx context.Context, fn func(key string)) error {
	s.mu.Lock()
	s.watchers = append(s.watchers, fn)
	s.mu.Unlock()
	<-ctx.Done()
	return ctx.Err()
}

// NotifyExternal simulates a mutation of key performed by another context.
func (s *Store) NotifyExternal(key string) {
	s.mu.Lock()
	watchers := make([]func(string), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(key)
	}
}
