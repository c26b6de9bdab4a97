// Package cache provides the bounded row cache shared by every manager
// operating on the same keyspace and column family, and the write-through
// pairing that keeps it coherent with the backend.
package cache

import (
	"context"
	"sync"

	"github.com/golang/groupcache/lru"

	"github.com/efroese/sparsemapcontent/store"
)

// DefaultMaxEntries bounds a cache when no capacity is given.
const DefaultMaxEntries = 10000

// Cache is a bounded, thread-safe map from fully-qualified row key to the
// last-known row. Eviction is recency-based. It carries no knowledge of
// access control; share one instance per keyspace/column-family across all
// managers so invalidation is visible cross-manager.
type Cache struct {
	mu  sync.Mutex
	lru *lru.Cache
}

// New creates a Cache bounded to maxEntries. Non-positive values fall back
// to DefaultMaxEntries.
func New(maxEntries int) *Cache {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Cache{lru: lru.New(maxEntries)}
}

// Get returns a copy of the cached row, if present.
func (c *Cache) Get(key string) (store.Properties, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return store.CopyProperties(v.(store.Properties)), true
}

// Put stores a copy of the row.
func (c *Cache) Put(key string, props store.Properties) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Add(key, store.CopyProperties(props))
}

// Remove evicts the row without touching the backend.
func (c *Cache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(key)
}

// Len returns the number of cached rows.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lru.Len()
}

// CachedStore pairs a backend client with a shared Cache. Managers embed
// it for their row access so a write by one manager invalidates reads by
// another.
type CachedStore struct {
	Client store.Client
	Cache  *Cache
}

func cacheKey(keySpace, columnFamily, key string) string {
	return keySpace + ":" + columnFamily + ":" + key
}

// Get reads from the cache, falling through to the backend and populating
// the cache on a miss. Absent rows come back as an empty map and are not
// cached.
func (s CachedStore) Get(ctx context.Context, keySpace, columnFamily, key string) (store.Properties, error) {
	ck := cacheKey(keySpace, columnFamily, key)
	if props, ok := s.Cache.Get(ck); ok {
		return props, nil
	}
	props, err := s.Client.Get(ctx, keySpace, columnFamily, key)
	if err != nil {
		return nil, err
	}
	if len(props) > 0 {
		s.Cache.Put(ck, props)
	}
	return props, nil
}

// Put writes through to the backend, then replaces the cache entry with
// the post-write row. Caching the re-read rather than the argument keeps
// removal sentinels out of cached values.
func (s CachedStore) Put(ctx context.Context, keySpace, columnFamily, key string, values store.Properties, probablyNew bool) error {
	if err := s.Client.Insert(ctx, keySpace, columnFamily, key, values, probablyNew); err != nil {
		return err
	}
	props, err := s.Client.Get(ctx, keySpace, columnFamily, key)
	if err != nil {
		return err
	}
	s.Cache.Put(cacheKey(keySpace, columnFamily, key), props)
	return nil
}

// Evict drops the cache entry without touching the backend. Use in tandem
// with an explicit Client.Remove.
func (s CachedStore) Evict(keySpace, columnFamily, key string) {
	s.Cache.Remove(cacheKey(keySpace, columnFamily, key))
}
