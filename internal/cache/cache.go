// Package cache defines the optional read-through cache for object
// metadata. HEAD results are cached by object key with a bounded TTL.
package cache

import (
	"context"
	"time"
)

// CacheError represents a cache error type.
type CacheError string

const (
	// ErrCacheMiss indicates the key was not found in cache.
	ErrCacheMiss CacheError = "cache miss"

	// ErrCacheUnavailable indicates the cache is unavailable.
	ErrCacheUnavailable CacheError = "cache unavailable"
)

func (e CacheError) Error() string {
	return string(e)
}

// Cache is the minimal key/value surface the client needs. A miss is
// reported as ErrCacheMiss, never as a nil value.
type Cache interface {
	// Get retrieves a value by key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with a TTL. A zero TTL means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value by key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Close releases any resources held by the cache.
	Close() error
}

// MetadataKey builds the cache key for an object's metadata.
func MetadataKey(bucket, objectKey string) string {
	return "tencos:meta:" + bucket + ":" + objectKey
}
