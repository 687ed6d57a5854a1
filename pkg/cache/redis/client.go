// Package redis wraps a go-redis/v9 client with the connection-lifecycle
// and generic caching helpers the embedding client and task queue share.
package redis

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/redis/go-redis/v9"
)

// Client wraps a *redis.Client with a logger.
type Client struct {
	rdb    *redis.Client
	logger logr.Logger
}

// NewClient builds a Client over opts without connecting yet; call
// EnsureConnection before first use.
func NewClient(opts *redis.Options, logger logr.Logger) *Client {
	return &Client{
		rdb:    redis.NewClient(opts),
		logger: logger,
	}
}

// EnsureConnection pings the server, returning an error if unreachable.
func (c *Client) EnsureConnection(ctx context.Context) error {
	if err := c.rdb.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	return nil
}

// Raw exposes the underlying *redis.Client for callers that need the full
// command surface (the task queue's Streams consumer groups, in particular).
func (c *Client) Raw() *redis.Client {
	return c.rdb
}

// Close releases the underlying connection pool.
func (c *Client) Close() error {
	return c.rdb.Close()
}
