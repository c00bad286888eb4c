package presence

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

const keyPrefix = "searchgate:session:"

// store is the consumer interface for presence operations (ISP).
type store interface {
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// Store mirrors session registrations into Redis/Valkey keys with a TTL.
type Store struct {
	store store
	ttl   time.Duration
}

// New creates a presence store. ttl bounds how long a crashed instance's entries linger.
func New(s store, ttl time.Duration) *Store {
	return &Store{store: s, ttl: ttl}
}

// Register records the session with its creation time as a unix timestamp.
func (s *Store) Register(ctx context.Context, id string, createdAt time.Time) error {
	value := strconv.FormatInt(createdAt.Unix(), 10)
	if err := s.store.SetWithTTL(ctx, Key(id), []byte(value), s.ttl); err != nil {
		return fmt.Errorf("presence SET %s: %w", id, err)
	}
	return nil
}

// Remove deletes the session record.
func (s *Store) Remove(ctx context.Context, id string) error {
	if err := s.store.Del(ctx, Key(id)); err != nil {
		return fmt.Errorf("presence DEL %s: %w", id, err)
	}
	return nil
}

// Exists reports whether any instance has the session registered.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	ok, err := s.store.Exists(ctx, Key(id))
	if err != nil {
		return false, fmt.Errorf("presence EXISTS %s: %w", id, err)
	}
	return ok, nil
}

// Key returns the storage key for a session id.
func Key(id string) string {
	return keyPrefix + id
}
