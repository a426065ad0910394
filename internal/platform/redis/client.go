// Package redis builds the go-redis client backing the idempotency-key
// store: short SET NX calls on the donation confirmation path.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"aidpool/internal/platform/config"
)

// Client wraps the go-redis client so callers can health-check it without
// knowing the underlying library.
type Client struct {
	*redis.Client
}

// New connects and verifies the connection with a ping bounded by the
// configured dial timeout. Returns nil without error when no URL is set;
// the caller falls back to the in-memory idempotency store.
func New(cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	opts.PoolSize = cfg.PoolSize
	opts.MinIdleConns = cfg.MinIdleConns
	opts.DialTimeout = cfg.DialTimeout
	opts.ReadTimeout = cfg.ReadTimeout
	opts.WriteTimeout = cfg.WriteTimeout

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{Client: client}, nil
}

// Health reports whether the connection still answers.
func (c *Client) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// Close releases the connection pool.
func (c *Client) Close() error {
	return c.Client.Close()
}
