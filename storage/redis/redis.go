// Package redis provides a Redis-backed storage backend for deployments
// where several contexts share one session (kiosk fleets, embedded
// webviews). Mutations are announced on a pub/sub channel so sibling
// contexts can observe them through storage.Watcher.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/kvartin/bindflow/storage"
)

// Store implements storage.Store and storage.Watcher over a redis client.
// Every instance carries a distinct origin ID; change announcements from the
// instance itself are filtered out of its own Watch callbacks, so a context
// only ever observes foreign mutations, matching browser storage-event
// semantics.
type Store struct {
	rdb    *redis.Client
	prefix string
	origin string
}

var (
	_ storage.Store   = (*Store)(nil)
	_ storage.Watcher = (*Store)(nil)
)

// NewStore returns a Store writing keys under prefix. An empty prefix
// defaults to "bindflow".
func NewStore(rdb *redis.Client, prefix string) *Store {
	if prefix == "" {
		prefix = "bindflow"
	}
	return &Store{
		rdb:    rdb,
		prefix: prefix,
		origin: uuid.NewString(),
	}
}

func (s *Store) key(key string) string {
	return s.prefix + ":" + key
}

func (s *Store) changeChannel() string {
	return s.prefix + ":changes"
}

// Load implements storage.Store.
func (s *Store) Load(ctx context.Context, key string) ([]byte, bool, error) {
	v, err := s.rdb.Get(ctx, s.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return v, true, nil
}

// Save implements storage.Store and announces the change.
func (s *Store) Save(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	s.announce(ctx, key)
	return nil
}

// Delete implements storage.Store and announces the change.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.key(key)).Err(); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	s.announce(ctx, key)
	return nil
}

func (s *Store) announce(ctx context.Context, key string) {
	// Announcement failures are not surfaced: the write itself committed,
	// and watchers are a refresh hint, not a consistency mechanism.
	_ = s.rdb.Publish(ctx, s.changeChannel(), s.origin+"|"+key).Err()
}

// Watch implements storage.Watcher. It blocks until ctx is cancelled,
// invoking fn with the logical key for every foreign mutation.
func (s *Store) Watch(ctx context.Context, fn func(key string)) error {
	sub := s.rdb.Subscribe(ctx, s.changeChannel())
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("%w: subscription closed", storage.ErrUnavailable)
			}
			origin, key, found := strings.Cut(msg.Payload, "|")
			if !found || origin == s.origin {
				continue
			}
			fn(key)
		}
	}
}
