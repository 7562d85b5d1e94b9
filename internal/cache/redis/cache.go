// Package redis provides a Redis-backed cache for deployments where many
// uploader processes share one metadata cache.
package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/prn-tf/tencos/internal/cache"
)

// Cache implements cache.Cache on a Redis client.
type Cache struct {
	client *goredis.Client
	logger zerolog.Logger
}

// Config holds Redis connection settings.
type Config struct {
	Addr        string
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

// NewCache connects to Redis and verifies the connection.
func NewCache(ctx context.Context, cfg Config, logger zerolog.Logger) (*Cache, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:        cfg.Addr,
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	logger.Info().Str("addr", cfg.Addr).Msg("connected to Redis cache")

	return &Cache{
		client: client,
		logger: logger.With().Str("component", "cache").Logger(),
	}, nil
}

// Get retrieves a value by key.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, error) {
	value, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, cache.ErrCacheMiss
		}
		return nil, fmt.Errorf("%w: %v", cache.ErrCacheUnavailable, err)
	}
	return value, nil
}

// Set stores a value with a TTL.
func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if err := c.client.Set(ctx, key, value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrCacheUnavailable, err)
	}
	return nil
}

// Delete removes a value by key.
func (c *Cache) Delete(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("%w: %v", cache.ErrCacheUnavailable, err)
	}
	return nil
}

// Close releases the Redis client.
func (c *Cache) Close() error {
	return c.client.Close()
}

var _ cache.Cache = (*Cache)(nil)
