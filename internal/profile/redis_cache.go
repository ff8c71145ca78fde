package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/pkg/pubsub"
)

type RedisCache struct {
	client *redis.Client
	prefix string
}

func NewRedisCache(cfg pubsub.RedisConfig, prefix string) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{
		client: client,
		prefix: prefix,
	}, nil
}

func (c *RedisCache) buildKey(userID string) string {
	return fmt.Sprintf("%s:profile:%s", c.prefix, userID)
}

func (c *RedisCache) Get(ctx context.Context, userID string) (*domain.UserProfile, error) {
	data, err := c.client.Get(ctx, c.buildKey(userID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var profile domain.UserProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}

	return &profile, nil
}

func (c *RedisCache) Has(ctx context.Context, userID string) (bool, error) {
	n, err := c.client.Exists(ctx, c.buildKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check redis key: %w", err)
	}
	return n > 0, nil
}

func (c *RedisCache) AddMany(ctx context.Context, profiles []domain.UserProfile, ttl time.Duration) error {
	if len(profiles) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for _, profile := range profiles {
		data, err := json.Marshal(profile)
		if err != nil {
			return fmt.Errorf("failed to marshal cache data: %w", err)
		}
		pipe.Set(ctx, c.buildKey(profile.ID), data, ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to set in redis: %w", err)
	}

	return nil
}

func (c *RedisCache) Delete(ctx context.Context, userIDs ...string) error {
	if len(userIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(userIDs))
	for _, id := range userIDs {
		keys = append(keys, c.buildKey(id))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete from redis: %w", err)
	}

	return nil
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
