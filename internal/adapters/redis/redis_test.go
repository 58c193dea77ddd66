package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newMiniredisClient(t *testing.T) (*miniredis.Miniredis, goredis.UniversalClient) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestIdempotencyCache_MissThenHit(t *testing.T) {
	_, client := newMiniredisClient(t)
	cache := NewIdempotencyCache(client, "payflow", testLogger())
	ctx := context.Background()

	_, ok := cache.Lookup(ctx, "key-1")
	require.False(t, ok)

	cache.Store(ctx, "key-1", "payment-123", time.Minute)

	got, ok := cache.Lookup(ctx, "key-1")
	require.True(t, ok)
	require.Equal(t, "payment-123", got)
}

func TestIdempotencyCache_NilClientFailsOpen(t *testing.T) {
	cache := NewIdempotencyCache(nil, "payflow", testLogger())
	ctx := context.Background()

	_, ok := cache.Lookup(ctx, "key-1")
	require.False(t, ok)

	// must not panic
	cache.Store(ctx, "key-1", "payment-123", time.Minute)
}

func TestDistributedLock_AcquireContentionAndFencedRelease(t *testing.T) {
	_, client := newMiniredisClient(t)
	lock := NewDistributedLock(client, "payflow", 30*time.Second, testLogger())
	ctx := context.Background()

	token, ok := lock.Acquire(ctx, "payment:p1")
	require.True(t, ok)
	require.NotEmpty(t, token)

	// second acquire contends
	_, ok = lock.Acquire(ctx, "payment:p1")
	require.False(t, ok)

	// release with the wrong token must not delete the lock
	lock.Release(ctx, "payment:p1", "not-the-real-token")
	_, ok = lock.Acquire(ctx, "payment:p1")
	require.False(t, ok)

	// release with the real token frees it
	lock.Release(ctx, "payment:p1", token)
	_, ok = lock.Acquire(ctx, "payment:p1")
	require.True(t, ok)
}

func TestDistributedLock_NilClientFailsOpen(t *testing.T) {
	lock := NewDistributedLock(nil, "payflow", 30*time.Second, testLogger())
	ctx := context.Background()

	token, ok := lock.Acquire(ctx, "payment:p1")
	require.False(t, ok)
	require.Empty(t, token)

	// must not panic
	lock.Release(ctx, "payment:p1", "anything")
}

func TestRateLimiter_AllowsTenDeniesEleventh(t *testing.T) {
	_, client := newMiniredisClient(t)
	rl := NewRateLimiter(client, "payflow", 10, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		require.True(t, rl.Allow(ctx, "user-1"), "request %d should be allowed", i+1)
	}
	require.False(t, rl.Allow(ctx, "user-1"), "11th request should be denied")
}

func TestRateLimiter_NilClientFailsOpen(t *testing.T) {
	rl := NewRateLimiter(nil, "payflow", 10, time.Minute, testLogger())
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		require.True(t, rl.Allow(ctx, "user-1"))
	}
}
