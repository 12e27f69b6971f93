package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const defaultMemoryCacheSize = 1024

// MemoryCache implements QueryCache with an in-process expirable LRU.
// It serves single-process deployments and tests where redis would be
// overhead. The LRU's TTL is fixed at construction; per-entry TTLs
// shorter than it are honored by storing the deadline alongside.
type MemoryCache struct {
	lru *expirable.LRU[string, memoryEntry]
}

type memoryEntry struct {
	value    []byte
	deadline time.Time
}

var _ QueryCache = (*MemoryCache)(nil)

// NewMemoryCache creates an in-process cache. size <= 0 selects a
// reasonable default; ttl <= 0 selects DefaultTTL.
func NewMemoryCache(size int, ttl time.Duration) *MemoryCache {
	if size <= 0 {
		size = defaultMemoryCacheSize
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryCache{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, ttl),
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	entry, ok := c.lru.Get(key)
	if !ok {
		return nil, false, nil
	}
	if !entry.deadline.IsZero() && time.Now().After(entry.deadline) {
		c.lru.Remove(key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.deadline = time.Now().Add(ttl)
	}
	c.lru.Add(key, entry)
	return nil
}

func (c *MemoryCache) Close() error {
	c.lru.Purge()
	return nil
}
