package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter is a fixed-window counter per principal, fail-open on any
// backend error.
type RateLimiter struct {
	client    redis.UniversalClient
	namespace string
	limit     int64
	window    time.Duration
	log       *slog.Logger
}

func NewRateLimiter(client redis.UniversalClient, namespace string, limit int64, window time.Duration, log *slog.Logger) *RateLimiter {
	return &RateLimiter{client: client, namespace: namespace, limit: limit, window: window, log: log}
}

func (r *RateLimiter) key(principal string) string {
	return namespacedKey(r.namespace, "rate", principal)
}

// Allow increments the window counter for principal and reports whether
// the request may proceed. Any backend error, and an absent backend, both
// return true (fail-open).
func (r *RateLimiter) Allow(ctx context.Context, principal string) bool {
	if r.client == nil {
		return true
	}

	key := r.key(principal)
	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		r.log.WarnContext(ctx, "rate limiter unavailable, failing open", "err", err, "principal", principal)
		return true
	}

	if count == 1 {
		if err := r.client.Expire(ctx, key, r.window).Err(); err != nil {
			r.log.WarnContext(ctx, "rate limiter window expiry failed", "err", err, "principal", principal)
		}
	}

	if count > r.limit {
		r.log.InfoContext(ctx, "rate limit exceeded", "principal", principal, "count", count, "limit", r.limit)
		return false
	}
	return true
}
