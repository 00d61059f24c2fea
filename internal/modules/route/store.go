// README: Shared route cache backed by Redis.
package route

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

const routeKeyPrefix = "route:"

type RedisCache struct {
	redis *redis.Client
	ttl   time.Duration
}

func NewRedisCache(redis *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{redis: redis, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, p Pair) (Route, bool, error) {
	data, err := c.redis.Get(ctx, routeKeyPrefix+p.Key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return Route{}, false, nil
	}
	if err != nil {
		return Route{}, false, err
	}
	var r Route
	if err := json.Unmarshal(data, &r); err != nil {
		return Route{}, false, err
	}
	return r, true, nil
}

func (c *RedisCache) Set(ctx context.Context, p Pair, r Route) error {
	data, err := json.Marshal(r)
	if err != nil {
		return err
	}
	return c.redis.Set(ctx, routeKeyPrefix+p.Key(), data, c.ttl).Err()
}
