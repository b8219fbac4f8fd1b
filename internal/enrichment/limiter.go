package enrichment

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shzded/MediCall-AI/pkg/logger"
	"github.com/shzded/MediCall-AI/pkg/utils"
)

// RedisLimiter caps concurrent provider calls across every replica sharing one Redis.
type RedisLimiter struct {
	rdb   redis.Scripter
	key   string
	limit int
	ttl   time.Duration
}

func NewRedisLimiter(rdb redis.Scripter, key string, limit int, ttl time.Duration) *RedisLimiter {
	if key == "" {
		key = "medicall:enrichment:inflight"
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &RedisLimiter{rdb: rdb, key: key, limit: limit, ttl: ttl}
}

func (l *RedisLimiter) Acquire(ctx context.Context) (func(), bool, error) {
	ok, err := utils.AcquireConcurrencyCap(ctx, l.rdb, l.key, l.limit, l.ttl)
	if err != nil || !ok {
		return func() {}, false, err
	}
	release := func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := utils.ReleaseConcurrencyCap(rctx, l.rdb, l.key); err != nil {
			logger.From(ctx).Warn("release provider slot failed", "err", err)
		}
	}
	return release, true, nil
}
