package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sheria-ai/sheria/internal/model"
)

// RedisCache stores results in Redis so cache hits survive restarts and are
// shared across replicas.
type RedisCache struct {
	rdb *redis.Client
}

// NewRedisCache connects to the given redis:// URL and verifies the
// connection with a ping.
func NewRedisCache(ctx context.Context, url string) (*RedisCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("cache: ping redis: %w", err)
	}
	return &RedisCache{rdb: rdb}, nil
}

// NewRedisCacheFromClient wraps an existing client. Used by tests.
func NewRedisCacheFromClient(rdb *redis.Client) *RedisCache {
	return &RedisCache{rdb: rdb}
}

func (c *RedisCache) Get(ctx context.Context, key string) (model.QueryResult, bool, error) {
	raw, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return model.QueryResult{}, false, nil
	}
	if err != nil {
		return model.QueryResult{}, false, fmt.Errorf("cache: redis get: %w", err)
	}

	var res model.QueryResult
	if err := json.Unmarshal(raw, &res); err != nil {
		// A corrupt entry is treated as a miss; the fresh result will
		// overwrite it.
		return model.QueryResult{}, false, nil
	}
	return res, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, res model.QueryResult, ttl time.Duration) error {
	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("cache: marshal result: %w", err)
	}
	if err := c.rdb.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("cache: redis set: %w", err)
	}
	return nil
}

func (c *RedisCache) Close() error {
	return c.rdb.Close()
}
