package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"stockman/internal/domain"
)

const (
	overallStatsKey   = "stockman:stats:overall"
	inventoryStatsKey = "stockman:stats:inventory"
)

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

func (c *RedisReportCache) GetOverallStats(ctx context.Context) (*domain.OverallStats, bool, error) {
	var stats domain.OverallStats
	ok, err := c.get(ctx, overallStatsKey, &stats)
	if !ok || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisReportCache) SetOverallStats(ctx context.Context, stats domain.OverallStats, ttl time.Duration) error {
	return c.set(ctx, overallStatsKey, stats, ttl)
}

func (c *RedisReportCache) GetInventoryStats(ctx context.Context) (*domain.InventoryStats, bool, error) {
	var stats domain.InventoryStats
	ok, err := c.get(ctx, inventoryStatsKey, &stats)
	if !ok || err != nil {
		return nil, false, err
	}
	return &stats, true, nil
}

func (c *RedisReportCache) SetInventoryStats(ctx context.Context, stats domain.InventoryStats, ttl time.Duration) error {
	return c.set(ctx, inventoryStatsKey, stats, ttl)
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Del(ctx, overallStatsKey, inventoryStatsKey).Err()
}

func (c *RedisReportCache) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := c.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, err
	}
	return true, nil
}

func (c *RedisReportCache) set(ctx context.Context, key string, value any, ttl time.Duration) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key, payload, ttl).Err()
}
