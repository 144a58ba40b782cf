// Package store provides the key-value contract behind every persisted record
// and its Redis, SQL and in-memory implementations.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a key is absent or expired.
	ErrNotFound = errors.New("store: key not found")
	// ErrExists is returned by Create when the key is already present.
	ErrExists = errors.New("store: key exists")
	// ErrConflict is returned when an optimistic update kept losing races.
	ErrConflict = errors.New("store: too many concurrent updates")
)

// UpdateFunc receives the current value (nil when the key is absent) and returns
// the value to store. Returning an error aborts the update without writing.
type UpdateFunc func(current []byte) ([]byte, error)

// KV is a key-value store with atomic per-key read-modify-write.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// Set writes value; ttl <= 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Create writes value only if key is absent.
	Create(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Update applies fn atomically with respect to other writers of key.
	// An existing expiry is preserved.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	Delete(ctx context.Context, key string) error
	// Keys lists live keys starting with prefix.
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Sweeper is implemented by stores that do not expire keys on their own.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

const maxUpdateRetries = 16
