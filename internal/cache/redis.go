// Package cache provides a Redis-backed TTL cache for catalog API responses.
// The worker degrades gracefully when Redis is unreachable: every operation
// is best-effort and misses are indistinguishable from errors to callers.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"animerank/ingestion/internal/metrics"
)

// Config holds Redis connection configuration
type Config struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// RedisCache caches raw catalog page payloads keyed by (season, year, page).
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(cfg Config, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

// Close closes the Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func seasonPageKey(seasonName string, year, page int) string {
	return fmt.Sprintf("jikan:season:%s:%d:p%d", seasonName, year, page)
}

// GetSeasonPage returns a cached season listing payload, or false on miss.
func (c *RedisCache) GetSeasonPage(ctx context.Context, seasonName string, year, page int) ([]byte, bool) {
	if c == nil {
		return nil, false
	}

	data, err := c.client.Get(ctx, seasonPageKey(seasonName, year, page)).Bytes()
	if err == redis.Nil {
		metrics.RecordCacheMiss()
		return nil, false
	}
	if err != nil {
		log.Warn().Err(err).Msg("Cache read failed, treating as miss")
		metrics.RecordCacheMiss()
		return nil, false
	}

	metrics.RecordCacheHit()
	return data, true
}

// SetSeasonPage stores a season listing payload with the configured TTL.
func (c *RedisCache) SetSeasonPage(ctx context.Context, seasonName string, year, page int, data []byte) {
	if c == nil {
		return
	}

	if err := c.client.Set(ctx, seasonPageKey(seasonName, year, page), data, c.ttl).Err(); err != nil {
		log.Warn().Err(err).Msg("Cache write failed")
	}
}

// InvalidateSeason drops every cached page for a season, used before a
// forced refresh so the sync sees fresh upstream data.
func (c *RedisCache) InvalidateSeason(ctx context.Context, seasonName string, year int) {
	if c == nil {
		return
	}

	pattern := fmt.Sprintf("jikan:season:%s:%d:p*", seasonName, year)
	iter := c.client.Scan(ctx, 0, pattern, 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			log.Warn().Err(err).Str("key", iter.Val()).Msg("Cache invalidation failed")
		}
	}
	if err := iter.Err(); err != nil {
		log.Warn().Err(err).Msg("Cache scan failed during invalidation")
	}
}
