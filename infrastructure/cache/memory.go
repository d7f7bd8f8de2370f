// Package cache provides ports.CacheStore implementations for read-only
// tool results.
package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ahrav/go-maestro/internal/ports"
)

// DefaultCleanupInterval is how often expired entries are purged.
const DefaultCleanupInterval = 10 * time.Minute

var _ ports.CacheStore = (*MemoryStore)(nil)

// MemoryStore is an in-process CacheStore backed by go-cache. It is safe
// for concurrent use.
type MemoryStore struct {
	items *gocache.Cache
}

// NewMemoryStore creates a store whose entries never expire unless Set is
// given a positive expiration.
func NewMemoryStore(cleanupInterval time.Duration) *MemoryStore {
	if cleanupInterval <= 0 {
		cleanupInterval = DefaultCleanupInterval
	}
	return &MemoryStore{items: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get returns the value stored under key.
func (s *MemoryStore) Get(ctx context.Context, key string) (any, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, &ports.CacheError{Operation: "get", Key: key, Err: err}
	}
	v, ok := s.items.Get(key)
	return v, ok, nil
}

// Set stores value under key. A zero expiration keeps the entry for the
// life of the store.
func (s *MemoryStore) Set(ctx context.Context, key string, value any, expiration time.Duration) error {
	if err := ctx.Err(); err != nil {
		return &ports.CacheError{Operation: "set", Key: key, Err: err}
	}
	if expiration <= 0 {
		expiration = gocache.NoExpiration
	}
	s.items.Set(key, value, expiration)
	return nil
}

// Len reports the number of entries, including expired ones that have not
// been purged yet.
func (s *MemoryStore) Len() int { return s.items.ItemCount() }
