package cache

import (
	"context"
	"time"

	redis "github.com/redis/go-redis/v9"
)

type RedisTokenCache struct {
	client *redis.Client
}

func NewRedisTokenCache(addr string, password string, db int) *RedisTokenCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisTokenCache{client: client}
}

func (c *RedisTokenCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisTokenCache) Close() error {
	return c.client.Close()
}

func (c *RedisTokenCache) Get(ctx context.Context, token string) (string, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(token)).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}

func (c *RedisTokenCache) Set(ctx context.Context, token string, accountID string, ttl time.Duration) error {
	if token == "" || accountID == "" {
		return nil
	}
	return c.client.Set(ctx, cacheKey(token), accountID, ttl).Err()
}

func cacheKey(token string) string {
	return "sync:token:" + token
}
