// Package memory provides an in-memory cache implementation. Suitable for a
// single process; distributed deployments should use the Redis cache.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/prn-tf/tencos/internal/cache"
)

// Cache implements cache.Cache using in-process storage.
type Cache struct {
	mu      sync.RWMutex
	items   map[string]*cacheItem
	stopCh  chan struct{}
	stopped bool
}

// cacheItem represents a single cached item.
type cacheItem struct {
	value     []byte
	expiresAt time.Time
	noExpiry  bool
}

// isExpired checks if the item has expired.
func (i *cacheItem) isExpired() bool {
	if i.noExpiry {
		return false
	}
	return time.Now().After(i.expiresAt)
}

// NewCache creates a new in-memory cache with a background sweeper.
func NewCache() *Cache {
	c := &Cache{
		items:  make(map[string]*cacheItem),
		stopCh: make(chan struct{}),
	}
	go c.cleanupLoop()
	return c
}

// cleanupLoop periodically removes expired items.
func (c *Cache) cleanupLoop() {
	ticker := time.NewTicker(60 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.cleanup()
		}
	}
}

// cleanup removes expired items.
func (c *Cache) cleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, item := range c.items {
		if item.isExpired() {
			delete(c.items, key)
		}
	}
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	item, exists := c.items[key]
	if !exists || item.isExpired() {
		return nil, cache.ErrCacheMiss
	}

	value := make([]byte, len(item.value))
	copy(value, item.value)
	return value, nil
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	stored := make([]byte, len(value))
	copy(stored, value)

	item := &cacheItem{value: stored}
	if ttl == 0 {
		item.noExpiry = true
	} else {
		item.expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item
	return nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

// Close stops the sweeper.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.stopped {
		close(c.stopCh)
		c.stopped = true
	}
	return nil
}

var _ cache.Cache = (*Cache)(nil)
