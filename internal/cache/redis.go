package cache

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis is a shared cache for deployments running more than one instance.
type Redis struct {
	rdb *redis.Client
	ttl time.Duration
	log *slog.Logger
}

func NewRedis(addr string, ttl time.Duration, log *slog.Logger) *Redis {
	return &Redis{
		rdb: redis.NewClient(&redis.Options{Addr: addr}),
		ttl: ttl,
		log: log,
	}
}

const keyPrefix = "mindmap:memo:"

func (c *Redis) Get(ctx context.Context, key string) (string, bool) {
	v, err := c.rdb.Get(ctx, keyPrefix+key).Result()
	if err == redis.Nil {
		return "", false
	}
	if err != nil {
		c.log.Warn("redis get failed", "error", err)
		return "", false
	}
	return v, true
}

func (c *Redis) Put(ctx context.Context, key, value string) {
	if err := c.rdb.Set(ctx, keyPrefix+key, value, c.ttl).Err(); err != nil {
		c.log.Warn("redis set failed", "error", err)
	}
}

// Ping checks connectivity at startup.
func (c *Redis) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

func (c *Redis) Close() error {
	return c.rdb.Close()
}
