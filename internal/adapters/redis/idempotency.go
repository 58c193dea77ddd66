package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// IdempotencyCache is a fast-path lookup of a prior payment by
// client-supplied idempotency key, TTL'd on write.
type IdempotencyCache struct {
	client    redis.UniversalClient
	namespace string
	log       *slog.Logger
}

func NewIdempotencyCache(client redis.UniversalClient, namespace string, log *slog.Logger) *IdempotencyCache {
	return &IdempotencyCache{client: client, namespace: namespace, log: log}
}

func (c *IdempotencyCache) key(idempotencyKey string) string {
	return namespacedKey(c.namespace, "idempotency", idempotencyKey)
}

// Lookup returns (paymentID, true) on a cache hit. A cache miss, a cache
// error, or an absent backend all return ("", false) — callers must fall
// through to the database.
func (c *IdempotencyCache) Lookup(ctx context.Context, idempotencyKey string) (string, bool) {
	if c.client == nil {
		return "", false
	}

	val, err := c.client.Get(ctx, c.key(idempotencyKey)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.WarnContext(ctx, "idempotency cache lookup failed, falling through to db",
				"err", err, "idempotency_key", idempotencyKey)
		}
		return "", false
	}
	return val, true
}

// Store is best-effort: failures are logged, never surfaced.
func (c *IdempotencyCache) Store(ctx context.Context, idempotencyKey, paymentID string, ttl time.Duration) {
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, c.key(idempotencyKey), paymentID, ttl).Err(); err != nil {
		c.log.WarnContext(ctx, "idempotency cache write failed", "err", err, "idempotency_key", idempotencyKey)
	}
}
