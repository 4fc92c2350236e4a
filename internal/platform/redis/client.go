// Package redis opens the Redis connection shared by the login rate limiter
// and the token revocation list.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"gestionale/internal/platform/config"
	"gestionale/pkg/platform/sentinel"
)

const clientName = "gestionale"

// Client is the shared connection. A nil *Client means Redis is not configured.
type Client struct {
	*redis.Client
}

// New connects to cfg.URL and checks the server answers. It returns a nil
// client and no error when no URL is configured.
func New(ctx context.Context, cfg config.RedisConfig) (*Client, error) {
	if cfg.URL == "" {
		return nil, nil
	}
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}
	c := &Client{Client: redis.NewClient(opts)}
	if err := c.ping(ctx, opts.DialTimeout); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// options layers the non-zero pool and timeout settings over the URL.
func options(cfg config.RedisConfig) (*redis.Options, error) {
	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	opts.ClientName = clientName
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}
	if cfg.MinIdleConns > 0 {
		opts.MinIdleConns = cfg.MinIdleConns
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	return opts, nil
}

func (c *Client) ping(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := c.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping: %v: %w", err, sentinel.ErrUnavailable)
	}
	return nil
}

// Health is the readiness check for Redis.
func (c *Client) Health(ctx context.Context) error {
	return c.ping(ctx, 0)
}
