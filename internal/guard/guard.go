// Package guard is an optional per-user, per-day delivery watermark kept
// outside the snapshot store. Without it the worker is at-most-once per run
// and relies on the next scheduled run for recovery.
package guard

import (
	"context"
	"time"

	"github.com/quocanhngo/habitnudge/internal/engine"
	"github.com/redis/go-redis/v9"
)

// Guard claims a (kind, user, day) slot before a message goes out.
type Guard interface {
	// Claim returns false when the slot was already claimed by an earlier run.
	Claim(ctx context.Context, kind, userID string, day engine.Date) (bool, error)
	// Release frees a slot whose message never reached the provider.
	Release(ctx context.Context, kind, userID string, day engine.Date) error
}

// Noop claims every slot. It is used when the guard is disabled.
type Noop struct{}

func (Noop) Claim(context.Context, string, string, engine.Date) (bool, error) { return true, nil }
func (Noop) Release(context.Context, string, string, engine.Date) error      { return nil }

// RedisGuard stores claims as expiring redis keys.
type RedisGuard struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisGuard(rdb *redis.Client, prefix string, ttl time.Duration) *RedisGuard {
	if ttl <= 0 {
		ttl = 26 * time.Hour
	}
	return &RedisGuard{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (g *RedisGuard) key(kind, userID string, day engine.Date) string {
	return g.prefix + kind + ":" + day.String() + ":" + userID
}

// Claim uses SET NX so concurrent runs cannot both win the same slot.
func (g *RedisGuard) Claim(ctx context.Context, kind, userID string, day engine.Date) (bool, error) {
	return g.rdb.SetNX(ctx, g.key(kind, userID, day), time.Now().UTC().Format(time.RFC3339), g.ttl).Result()
}

func (g *RedisGuard) Release(ctx context.Context, kind, userID string, day engine.Date) error {
	return g.rdb.Del(ctx, g.key(kind, userID, day)).Err()
}
