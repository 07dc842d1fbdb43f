package storage

import (
	"context"
	"sync"
)

// Cache is the last-resort tier. Its scope is part of the contract:
// MemoryCache is per process, RedisCache is shared by every instance that
// points at the same Redis database.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, data []byte)
	Delete(ctx context.Context, key string)
}

// MemoryCache is a process-local Cache
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string][]byte
}

// NewMemoryCache creates an empty process-local cache
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string][]byte)}
}

// Get implements Cache
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, true
}

// Set implements Cache
func (c *MemoryCache) Set(_ context.Context, key string, data []byte) {
	buf := make([]byte, len(data))
	copy(buf, data)
	c.mu.Lock()
	c.entries[key] = buf
	c.mu.Unlock()
}

// Delete implements Cache
func (c *MemoryCache) Delete(_ context.Context, key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}
