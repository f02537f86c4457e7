// Package cachestore implements the durable key/value region used by the
// offline tier, with a per-key "last refreshed" clock for staleness checks.
//
// Three Backend implementations are provided:
//   - MemoryBackend: in-process, for tests and ephemeral runs.
//   - BadgerBackend: embedded on-disk store, the default on devices.
//   - PostgresBackend: shared durable store for server-side deployments.
//
// Cache wraps a Backend with JSON serialization and the staleness policy.
package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned by a Backend when a key has never been written.
var ErrNotFound = errors.New("cache key not found")

// refreshedSuffix is appended to a key to store its refresh timestamp.
const refreshedSuffix = ":refreshed_at"

// Entry is a single key/value pair written by Backend.Set.
type Entry struct {
	Key   string
	Value []byte
}

// Backend is the raw storage contract. Set must apply all entries atomically:
// either every entry becomes visible or none does.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, entries ...Entry) error
	Delete(ctx context.Context, keys ...string) error
	Close() error
}

// Cache is the typed view of a Backend used by the directory and repository.
type Cache struct {
	backend Backend
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithClock overrides the time source used for refresh stamps and staleness.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New wraps backend in a Cache.
func New(backend Backend, opts ...Option) *Cache {
	c := &Cache{backend: backend, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Put serializes value as JSON and overwrites key.
func (c *Cache) Put(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := c.backend.Set(ctx, Entry{Key: key, Value: b}); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PutFresh writes value and stamps key as refreshed now, in one atomic write.
func (c *Cache) PutFresh(ctx context.Context, key string, value any) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	stamp := []byte(c.now().UTC().Format(time.RFC3339Nano))
	if err := c.backend.Set(ctx,
		Entry{Key: key, Value: b},
		Entry{Key: key + refreshedSuffix, Value: stamp},
	); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// Get decodes the value stored under key into dst. It returns false with a
// nil error when the key has never been written.
func (c *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	b, err := c.backend.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal(b, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// RefreshedAt returns when key was last refreshed, if ever.
func (c *Cache) RefreshedAt(ctx context.Context, key string) (time.Time, bool, error) {
	b, err := c.backend.Get(ctx, key+refreshedSuffix)
	if errors.Is(err, ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("get stamp %s: %w", key, err)
	}
	t, err := time.Parse(time.RFC3339Nano, string(b))
	if err != nil {
		return time.Time{}, false, fmt.Errorf("parse stamp %s: %w", key, err)
	}
	return t, true, nil
}

// IsStale reports whether key has no refresh stamp or one older than ttl.
// Read failures count as stale.
func (c *Cache) IsStale(ctx context.Context, key string, ttl time.Duration) bool {
	at, ok, err := c.RefreshedAt(ctx, key)
	if err != nil || !ok {
		return true
	}
	return c.now().Sub(at) > ttl
}

// Clear removes the value stored under key and its refresh stamp.
func (c *Cache) Clear(ctx context.Context, key string) error {
	if err := c.backend.Delete(ctx, key, key+refreshedSuffix); err != nil {
		return fmt.Errorf("clear %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying backend.
func (c *Cache) Close() error {
	return c.backend.Close()
}
