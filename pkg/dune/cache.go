package dune

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MetadataCache stores query metadata between calls.
type MetadataCache interface {
	Get(ctx context.Context, queryID int64) (*Query, bool, error)
	Set(ctx context.Context, q *Query) error
}

// RedisCache is a MetadataCache backed by Redis string keys with a TTL.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache wraps client. A nil client yields a nil cache, which callers
// treat as caching disabled.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	if client == nil {
		return nil
	}
	return &RedisCache{client: client, ttl: ttl}
}

func cacheKey(queryID int64) string {
	return fmt.Sprintf("dune:query:%d", queryID)
}

// Get returns the cached query, or false on a miss.
func (c *RedisCache) Get(ctx context.Context, queryID int64) (*Query, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(queryID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read cached query: %w", err)
	}

	var q Query
	if err := json.Unmarshal(data, &q); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached query: %w", err)
	}
	return &q, true, nil
}

// Set stores q for the configured TTL.
func (c *RedisCache) Set(ctx context.Context, q *Query) error {
	data, err := json.Marshal(q)
	if err != nil {
		return fmt.Errorf("failed to encode query: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(q.QueryID), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache query: %w", err)
	}
	return nil
}
