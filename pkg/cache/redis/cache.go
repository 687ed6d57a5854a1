package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a generic, prefix-scoped, TTL'd JSON cache over a Client. T must
// be JSON-serializable.
type Cache[T any] struct {
	client *Client
	prefix string
	ttl    time.Duration
}

// NewCache returns a Cache storing values under "<prefix>:<key>" with the
// given TTL.
func NewCache[T any](client *Client, prefix string, ttl time.Duration) *Cache[T] {
	return &Cache[T]{client: client, prefix: prefix, ttl: ttl}
}

func (c *Cache[T]) key(k string) string {
	return fmt.Sprintf("%s:%s", c.prefix, k)
}

// Get returns the cached value for key, and false if it was absent. A
// redis.Nil miss is not treated as an error.
func (c *Cache[T]) Get(ctx context.Context, k string) (T, bool, error) {
	var zero T
	raw, err := c.client.rdb.Get(ctx, c.key(k)).Bytes()
	if errors.Is(err, redis.Nil) {
		return zero, false, nil
	}
	if err != nil {
		return zero, false, fmt.Errorf("failed to read cache key %s: %w", k, err)
	}

	var value T
	if err := json.Unmarshal(raw, &value); err != nil {
		return zero, false, fmt.Errorf("failed to decode cached value for key %s: %w", k, err)
	}
	return value, true, nil
}

// Set stores value under key with the cache's configured TTL.
func (c *Cache[T]) Set(ctx context.Context, k string, value T) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode value for cache key %s: %w", k, err)
	}
	if err := c.client.rdb.Set(ctx, c.key(k), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache key %s: %w", k, err)
	}
	return nil
}

// Delete removes a cached value, if present.
func (c *Cache[T]) Delete(ctx context.Context, k string) error {
	if err := c.client.rdb.Del(ctx, c.key(k)).Err(); err != nil {
		return fmt.Errorf("failed to delete cache key %s: %w", k, err)
	}
	return nil
}
