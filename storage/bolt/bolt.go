// Package bolt provides a bbolt-backed storage backend: a single local file
// holding the session keys, the durable-storage analog for a single-process
// deployment.
package bolt

import (
	"context"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/kvartin/bindflow/storage"
)

var bucketName = []byte("bindflow")

// Store implements storage.Store over a bbolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.Store = (*Store)(nil)

// NewStore wraps an already-open bbolt database.
func NewStore(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// Open opens (creating if needed) a bbolt database at path and returns a
// Store over it.
func Open(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bolt db: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Load implements storage.Store.
func (s *Store) Load(_ context.Context, key string) ([]byte, bool, error) {
	var out []byte
	var found bool
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		out = make([]byte, len(v))
		copy(out, v)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return out, found, nil
}

// Save implements storage.Store.
func (s *Store) Save(_ context.Context, key string, value []byte) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}

// Delete implements storage.Store.
func (s *Store) Delete(_ context.Context, key string) error {
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrUnavailable, err)
	}
	return nil
}
