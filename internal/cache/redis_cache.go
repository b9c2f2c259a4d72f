package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"bengkelinaja/internal/domain"
)

type RedisJobsheetCache struct {
	client *redis.Client
}

func NewRedisJobsheetCache(addr string, password string, db int) *RedisJobsheetCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisJobsheetCache{client: client}
}

func (c *RedisJobsheetCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisJobsheetCache) Close() error {
	return c.client.Close()
}

func (c *RedisJobsheetCache) Get(ctx context.Context, jobsheetID string) (*domain.JobsheetDetail, bool, error) {
	val, err := c.client.Get(ctx, cacheKey(jobsheetID)).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var detail domain.JobsheetDetail
	if err := json.Unmarshal([]byte(val), &detail); err != nil {
		return nil, false, err
	}
	return &detail, true, nil
}

func (c *RedisJobsheetCache) Set(ctx context.Context, jobsheetID string, detail *domain.JobsheetDetail, ttl time.Duration) error {
	if detail == nil {
		return nil
	}
	payload, err := json.Marshal(detail)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, cacheKey(jobsheetID), payload, ttl).Err()
}

func (c *RedisJobsheetCache) Invalidate(ctx context.Context, jobsheetID string) error {
	return c.client.Del(ctx, cacheKey(jobsheetID)).Err()
}

func cacheKey(jobsheetID string) string {
	return "jobsheet:detail:" + jobsheetID
}
