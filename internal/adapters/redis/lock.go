package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// releaseScript performs the fenced compare-and-delete atomically: it only
// deletes the lock key if the stored value still matches the caller's
// token, so a stale holder (whose TTL already expired and was reacquired
// by someone else) can never release a lock it no longer owns.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
else
	return 0
end
`)

// DistributedLock is a named mutex with TTL and a fencing token, used to
// serialize state transitions per Payment aggregate.
type DistributedLock struct {
	client    redis.UniversalClient
	namespace string
	ttl       time.Duration
	log       *slog.Logger
}

func NewDistributedLock(client redis.UniversalClient, namespace string, ttl time.Duration, log *slog.Logger) *DistributedLock {
	return &DistributedLock{client: client, namespace: namespace, ttl: ttl, log: log}
}

func (l *DistributedLock) key(name string) string {
	return namespacedKey(l.namespace, "lock", name)
}

// Acquire sets lock:<name> to a fresh token under create-if-absent
// semantics with expiry. Returns ("", false) on contention or backend
// unavailability — callers must treat both identically and proceed
// degraded (fail-open) or skip the work, per the specific component's
// contract.
func (l *DistributedLock) Acquire(ctx context.Context, name string) (string, bool) {
	if l.client == nil {
		l.log.WarnContext(ctx, "lock backend unavailable, proceeding without a lock", "name", name)
		return "", false
	}

	token := uuid.New().String()
	ok, err := l.client.SetNX(ctx, l.key(name), token, l.ttl).Result()
	if err != nil {
		l.log.WarnContext(ctx, "lock acquire failed, proceeding without a lock", "err", err, "name", name)
		return "", false
	}
	if !ok {
		return "", false
	}
	return token, true
}

// Release deletes the lock only if it still holds the given token.
// Backend unavailability is silently ignored; a wrong token never deletes
// anyone else's lock.
func (l *DistributedLock) Release(ctx context.Context, name, token string) {
	if l.client == nil || token == "" {
		return
	}
	if err := releaseScript.Run(ctx, l.client, []string{l.key(name)}, token).Err(); err != nil {
		l.log.WarnContext(ctx, "lock release failed", "err", err, "name", name)
	}
}
