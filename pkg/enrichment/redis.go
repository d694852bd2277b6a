package enrichment

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/castellan/castellan/pkg/models"
)

const redisKeyPrefix = "castellan:enrich:"

// RedisCache stores enrichment in Redis with a per-key TTL, letting
// multiple pipeline replicas share one lookup budget. Backend errors
// degrade to cache misses.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache creates a cache on the given client.
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, ttl: ttl}
}

// Get fetches and decodes the cached enrichment.
func (c *RedisCache) Get(ctx context.Context, addr string) (*models.IPEnrichment, bool) {
	data, err := c.client.Get(ctx, redisKeyPrefix+addr).Bytes()
	if err != nil {
		if err != redis.Nil {
			slog.Debug("Enrichment cache read failed", "addr", addr, "error", err)
		}
		return nil, false
	}

	var e models.IPEnrichment
	if err := json.Unmarshal(data, &e); err != nil {
		slog.Debug("Enrichment cache entry corrupt, ignoring", "addr", addr, "error", err)
		return nil, false
	}
	return &e, true
}

// Set stores the enrichment with the cache TTL.
func (c *RedisCache) Set(ctx context.Context, addr string, e *models.IPEnrichment) {
	if e == nil {
		return
	}
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, redisKeyPrefix+addr, data, c.ttl).Err(); err != nil {
		slog.Debug("Enrichment cache write failed", "addr", addr, "error", err)
	}
}
