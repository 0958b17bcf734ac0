package creds

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rtanaka/barchive/internal/crypto"
)

// RedisCache shares the default-password cache across a worker pool's
// separate OS processes — the natural multi-process extension of spec
// §5's "process-wide" cache when the process is actually a pool of worker
// processes. Grounded on the pack's go-redis Get/Set/Err usage
// (frnd1406-NasServer's job_service.go), generalized from job-result
// caching to credential caching.
type RedisCache struct {
	client  *redis.Client
	prefix  string
	ttl     time.Duration
}

// NewRedisCache wraps an already-configured redis.Client. ttl bounds how
// long a cached default may be reused before a fresh prompt is forced
// (0 disables expiry, matching the in-memory cache's unbounded lifetime).
func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{client: client, prefix: "barchive:creds:", ttl: ttl}
}

func (c *RedisCache) redisKey(kind crypto.PromptKind, name string) string {
	return c.prefix + cacheKey(kind, name)
}

func (c *RedisCache) Get(ctx context.Context, kind crypto.PromptKind, name string) (string, bool) {
	if name != "" {
		if p, ok := c.get(ctx, c.redisKey(kind, name)); ok {
			return p, true
		}
	}
	return c.get(ctx, c.redisKey(kind, ""))
}

func (c *RedisCache) get(ctx context.Context, key string) (string, bool) {
	v, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// A transport error is treated the same as a cache miss: the
			// caller falls through to prompting rather than failing the
			// whole credential resolution on a cache outage.
		}
		return "", false
	}
	return v, true
}

func (c *RedisCache) Put(ctx context.Context, kind crypto.PromptKind, name, password string) error {
	if name != "" {
		if err := c.client.Set(ctx, c.redisKey(kind, name), password, c.ttl).Err(); err != nil {
			return fmt.Errorf("creds: redis set %s: %w", name, err)
		}
	}
	if err := c.client.Set(ctx, c.redisKey(kind, ""), password, c.ttl).Err(); err != nil {
		return fmt.Errorf("creds: redis set %s default: %w", kind, err)
	}
	return nil
}
