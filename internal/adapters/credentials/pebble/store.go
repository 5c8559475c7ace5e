package pebble

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cockroachdb/pebble/v2"

	"github.com/bnema/swarmchat/internal/domain"
	"github.com/bnema/swarmchat/internal/ports"
)

const keyPrefix = "credential/"

var ErrClosed = errors.New("credential store is closed")

// Store keeps credentials in a pebble database. Open it once per process;
// pebble holds an exclusive lock on the directory.
type Store struct {
	mu sync.RWMutex
	db *pebble.DB
}

var _ ports.CredentialStore = (*Store)(nil)

func Open(dir string) (*Store, error) {
	dir = filepath.Clean(dir)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}

	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble db: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, key string, value string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if key == "" {
		return fmt.Errorf("credential key is empty")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	if err := s.db.Set(dbKey(key), []byte(value), pebble.Sync); err != nil {
		return fmt.Errorf("put credential %q: %w", key, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return "", ErrClosed
	}

	raw, closer, err := s.db.Get(dbKey(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return "", fmt.Errorf("%w: %s", domain.ErrCredentialNotFound, key)
		}
		return "", fmt.Errorf("get credential %q: %w", key, err)
	}
	// raw is only valid until closer is closed.
	value := string(raw)
	_ = closer.Close()

	return value, nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return ErrClosed
	}

	if err := s.db.Delete(dbKey(key), pebble.Sync); err != nil {
		return fmt.Errorf("delete credential %q: %w", key, err)
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}

	err := s.db.Close()
	s.db = nil
	return err
}

func dbKey(key string) []byte {
	return []byte(keyPrefix + key)
}
