// Package redis adapts the idempotency cache, distributed lock, and rate
// limiter onto github.com/redis/go-redis/v9. No operation in this package
// returns a backend error: on backend unavailability the error is logged
// and the caller gets a cache miss, no lock, or an allowed request.
package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

type Config struct {
	URL          string
	Namespace    string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// NewClient returns nil when cfg.URL is empty: every adapter in this
// package treats a nil client as "backend absent" and fails open.
func NewClient(cfg Config) (redis.UniversalClient, error) {
	if cfg.URL == "" {
		return nil, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
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
	opts.PoolSize = 20
	opts.MinIdleConns = 5
	opts.MaxRetries = 3

	return redis.NewClient(opts), nil
}

func Ping(ctx context.Context, client redis.UniversalClient) error {
	if client == nil {
		return nil
	}
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func namespacedKey(namespace, kind, key string) string {
	return fmt.Sprintf("%s:%s:%s", namespace, kind, key)
}
