// Package cache holds the sender-name caches and the Redis connection used
// for distributed locks.
package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/rs/zerolog"

	"collab-server/services/groupchat-api/internal/config"
	"collab-server/services/groupchat-api/internal/domain/message"
)

// CacheVersion is part of every Redis key so a format change never reads
// stale entries.
const CacheVersion = "v1"

// NewNameCache builds the configured cache. redis may be nil unless the cache
// type is redis. A nil cache disables caching.
func NewNameCache(cfg *config.Config, rdb *Redis, log zerolog.Logger) (message.NameCache, error) {
	switch cfg.NameCacheType {
	case config.CacheTypeRedis:
		if rdb == nil {
			return nil, fmt.Errorf("redis name cache requires a Redis connection")
		}
		return NewRedisNameCache(rdb, cfg.RedisKeyPrefix, cfg.NameCacheTTL, log), nil
	case config.CacheTypeNoop:
		return NoopNameCache{}, nil
	default:
		return NewMemoryNameCache(cfg.NameCacheSize, cfg.NameCacheTTL)
	}
}

// NoopNameCache never hits.
type NoopNameCache struct{}

// GetMany implements message.NameCache.
func (NoopNameCache) GetMany(context.Context, []string) map[string]string { return nil }

// SetMany implements message.NameCache.
func (NoopNameCache) SetMany(context.Context, map[string]string) {}

type memoryEntry struct {
	name    string
	expires time.Time
}

// MemoryNameCache is a process-local LRU with per-entry expiry.
type MemoryNameCache struct {
	cache *lru.Cache
	ttl   time.Duration
	now   func() time.Time
}

// NewMemoryNameCache creates an LRU holding up to size names for ttl each.
func NewMemoryNameCache(size int, ttl time.Duration) (*MemoryNameCache, error) {
	if size <= 0 {
		size = 10000
	}
	c, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("create name cache: %w", err)
	}
	return &MemoryNameCache{cache: c, ttl: ttl, now: time.Now}, nil
}

// GetMany implements message.NameCache.
func (c *MemoryNameCache) GetMany(_ context.Context, keys []string) map[string]string {
	now := c.now()
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		raw, ok := c.cache.Get(k)
		if !ok {
			continue
		}
		entry := raw.(memoryEntry)
		if c.ttl > 0 && now.After(entry.expires) {
			c.cache.Remove(k)
			continue
		}
		out[k] = entry.name
	}
	return out
}

// SetMany implements message.NameCache.
func (c *MemoryNameCache) SetMany(_ context.Context, names map[string]string) {
	expires := c.now().Add(c.ttl)
	for k, v := range names {
		c.cache.Add(k, memoryEntry{name: v, expires: expires})
	}
}

// RedisNameCache shares resolved names across replicas.
type RedisNameCache struct {
	rdb    *Redis
	prefix string
	ttl    time.Duration
	log    zerolog.Logger
}

// NewRedisNameCache creates a Redis-backed name cache.
func NewRedisNameCache(rdb *Redis, prefix string, ttl time.Duration, log zerolog.Logger) *RedisNameCache {
	return &RedisNameCache{
		rdb:    rdb,
		prefix: prefix,
		ttl:    ttl,
		log:    log.With().Str("component", "name-cache").Logger(),
	}
}

func (c *RedisNameCache) key(k string) string {
	return c.prefix + "names:" + CacheVersion + ":" + k
}

// GetMany implements message.NameCache. Redis errors count as misses.
func (c *RedisNameCache) GetMany(ctx context.Context, keys []string) map[string]string {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.key(k)
	}
	vals, err := c.rdb.client.MGet(ctx, full...).Result()
	if err != nil {
		c.log.Warn().Err(err).Msg("name cache read failed")
		return nil
	}
	out := make(map[string]string, len(keys))
	for i, v := range vals {
		if s, ok := v.(string); ok && s != "" {
			out[keys[i]] = s
		}
	}
	return out
}

// SetMany implements message.NameCache.
func (c *RedisNameCache) SetMany(ctx context.Context, names map[string]string) {
	if len(names) == 0 {
		return
	}
	pipe := c.rdb.client.Pipeline()
	for k, v := range names {
		pipe.Set(ctx, c.key(k), v, c.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		c.log.Warn().Err(err).Msg("name cache write failed")
	}
}

var (
	_ message.NameCache = NoopNameCache{}
	_ message.NameCache = (*MemoryNameCache)(nil)
	_ message.NameCache = (*RedisNameCache)(nil)
)
