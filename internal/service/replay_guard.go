package service

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

const (
	claimInProgress = "processing"
	claimDone       = "done"
)

// ReplayGuard deduplicates webhook deliveries. A delivery is claimed for a
// short lease while it is processed, then either completed (kept for the
// replay window) or released so the next redelivery is processed again. A
// claim left behind by a crashed process expires with its lease.
type ReplayGuard interface {
	// Claim reports false when key is already claimed or completed.
	Claim(ctx context.Context, key string, lease time.Duration) (bool, error)
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

type redisCommander interface {
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *goredis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *goredis.StatusCmd
	Del(ctx context.Context, keys ...string) *goredis.IntCmd
}

type RedisReplayGuard struct {
	rdb redisCommander
}

func NewRedisReplayGuard(rdb redisCommander) *RedisReplayGuard {
	return &RedisReplayGuard{rdb: rdb}
}

func (g *RedisReplayGuard) Claim(ctx context.Context, key string, lease time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, key, claimInProgress, lease).Result()
}

func (g *RedisReplayGuard) Complete(ctx context.Context, key string, ttl time.Duration) error {
	return g.rdb.Set(ctx, key, claimDone, ttl).Err()
}

func (g *RedisReplayGuard) Release(ctx context.Context, key string) error {
	return g.rdb.Del(ctx, key).Err()
}

// NopReplayGuard treats every delivery as new.
type NopReplayGuard struct{}

func (NopReplayGuard) Claim(context.Context, string, time.Duration) (bool, error) {
	return true, nil
}

func (NopReplayGuard) Complete(context.Context, string, time.Duration) error { return nil }

func (NopReplayGuard) Release(context.Context, string) error { return nil }
