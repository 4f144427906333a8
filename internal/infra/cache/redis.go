package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/astro-web3/permission-filter/internal/infra/jwks"
	"github.com/redis/go-redis/v9"
)

type redisKeySetCache struct {
	client *redis.Client
}

func NewRedisClient(url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	opt.PoolSize = poolSize

	client := redis.NewClient(opt)

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

// NewKeySetCache returns a jwks.KeySetCache that shares fetched key sets
// across service instances through Redis.
func NewKeySetCache(client *redis.Client) jwks.KeySetCache {
	return &redisKeySetCache{client: client}
}

func (r *redisKeySetCache) Get(ctx context.Context, cacheKey string) (*jwks.KeySet, error) {
	key := fmt.Sprintf("permfilter:jwks:%s", cacheKey)
	val, err := r.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, jwks.ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var keySet jwks.KeySet
	if err := json.Unmarshal([]byte(val), &keySet); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached key set: %w", err)
	}

	return &keySet, nil
}

func (r *redisKeySetCache) Set(ctx context.Context, cacheKey string, keySet *jwks.KeySet, ttl time.Duration) error {
	key := fmt.Sprintf("permfilter:jwks:%s", cacheKey)
	data, err := json.Marshal(keySet)
	if err != nil {
		return fmt.Errorf("failed to marshal key set: %w", err)
	}

	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}
