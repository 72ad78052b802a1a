package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"claimstack/internal/platform/redis"
)

// Cache is the read-through store in front of the heavier lookups. Misses and
// backend failures both fall through to the source; the cache is best effort.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, payload []byte, ttl time.Duration)
}

// NoopCache is used when redis is not configured.
type NoopCache struct{}

func (NoopCache) Get(context.Context, string) ([]byte, bool)         { return nil, false }
func (NoopCache) Set(context.Context, string, []byte, time.Duration) {}

// RedisCache backs the lookup cache with the shared redis client.
type RedisCache struct {
	client *redis.Client
	logger *slog.Logger
}

func NewRedisCache(client *redis.Client, logger *slog.Logger) *RedisCache {
	return &RedisCache{client: client, logger: logger}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			c.logger.Debug("lookup cache read failed", "key", key, "error", err)
		}
		return nil, false
	}
	return raw, true
}

func (c *RedisCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) {
	if err := c.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		c.logger.Debug("lookup cache write failed", "key", key, "error", err)
	}
}
