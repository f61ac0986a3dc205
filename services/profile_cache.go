package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"spark_server/models"
)

// ProfileCache holds public profile summaries between requests. Get returns
// nil with no error on a miss.
type ProfileCache interface {
	Get(ctx context.Context, userID string) (*models.ProfileSummary, error)
	Set(ctx context.Context, summary models.ProfileSummary) error
	Invalidate(ctx context.Context, userID string) error
}

const profileCachePrefix = "profile:summary:"

// RedisProfileCache stores summaries as JSON strings with a TTL.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProfileCache connects to addr and verifies the connection.
func NewRedisProfileCache(ctx context.Context, addr, password string, ttl time.Duration) (*RedisProfileCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})
	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}
	return &RedisProfileCache{client: client, ttl: ttl}, nil
}

func (c *RedisProfileCache) Get(ctx context.Context, userID string) (*models.ProfileSummary, error) {
	raw, err := c.client.Get(ctx, profileCachePrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cached profile %s: %w", userID, err)
	}
	var summary models.ProfileSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode cached profile %s: %w", userID, err)
	}
	return &summary, nil
}

func (c *RedisProfileCache) Set(ctx context.Context, summary models.ProfileSummary) error {
	raw, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to encode profile %s: %w", summary.UserID, err)
	}
	return c.client.Set(ctx, profileCachePrefix+summary.UserID, raw, c.ttl).Err()
}

func (c *RedisProfileCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, profileCachePrefix+userID).Err()
}

// Close releases the Redis connection pool.
func (c *RedisProfileCache) Close() error {
	return c.client.Close()
}
