package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"nurbuild/backend/internal/domain"
)

type RedisSummaryCache struct {
	client *redis.Client
}

func NewRedisSummaryCache(addr string, password string, db int) *RedisSummaryCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisSummaryCache{client: client}
}

func (c *RedisSummaryCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisSummaryCache) Close() error {
	return c.client.Close()
}

func (c *RedisSummaryCache) Get(ctx context.Context, key string) (*domain.DebtSummary, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var summary domain.DebtSummary
	if err := json.Unmarshal(val, &summary); err != nil {
		return nil, false, err
	}
	return &summary, true, nil
}

func (c *RedisSummaryCache) Set(ctx context.Context, key string, value *domain.DebtSummary, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}

func (c *RedisSummaryCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.client.Del(ctx, keys...).Err()
}
