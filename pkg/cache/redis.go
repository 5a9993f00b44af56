package cache

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore handles caching operations with a Redis backend.
type RedisStore struct {
	redis *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore creates a new cache store with Redis backend.
func NewRedisStore(redisClient *redis.Client) *RedisStore {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &RedisStore{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
func (s *RedisStore) Get(ctx context.Context, key CacheKey) (*CacheEntry, error) {
	cacheKey := key.String()

	data, err := s.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.WithLabelValues(LayerRedis).Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = s.Delete(ctx, key)
		CacheMisses.WithLabelValues(LayerRedis).Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues(LayerRedis).Inc()
	return &entry, nil
}

// Set stores a cache entry. Permanent entries are stored without a Redis TTL;
// entries that already expired are dropped.
func (s *RedisStore) Set(ctx context.Context, key CacheKey, entry *CacheEntry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 && !entry.Permanent() {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := s.redis.Set(ctx, key.String(), data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheSize.WithLabelValues(LayerRedis).Add(float64(len(data)))
	return nil
}

// Delete removes a cache entry.
func (s *RedisStore) Delete(ctx context.Context, key CacheKey) error {
	if err := s.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
