package stats

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/shzded/MediCall-AI/pkg/utils"
)

// Cache stores JSON-encodable results by key.
type Cache interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Set(ctx context.Context, key string, v any, ttl time.Duration) error
}

// RedisCache keeps results under a fixed key prefix.
type RedisCache struct {
	rdb    redis.Cmdable
	prefix string
}

func NewRedisCache(rdb redis.Cmdable, prefix string) *RedisCache {
	if prefix == "" {
		prefix = "medicall:stats:"
	}
	return &RedisCache{rdb: rdb, prefix: prefix}
}

func (c *RedisCache) Get(ctx context.Context, key string, dst any) (bool, error) {
	return utils.GetJSON(ctx, c.rdb, c.prefix+key, dst)
}

func (c *RedisCache) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	return utils.SetJSON(ctx, c.rdb, c.prefix+key, v, ttl)
}

// Invalidate drops every cached result, e.g. after a bulk import.
func (c *RedisCache) Invalidate(ctx context.Context) error {
	return utils.DeleteByPrefix(ctx, c.rdb, c.prefix)
}
