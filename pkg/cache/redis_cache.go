package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisCache is a Cache backed by a shared Redis instance, so multiple
// convomem processes invalidate each other's cached reads. Tag membership
// is tracked with a Redis SET per tag so Invalidate(tag) can find every key
// written under it without a KEYS scan.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewRedisCache builds a RedisCache against addr, pinging once to fail
// fast on a bad connection string.
func NewRedisCache(addr string, ttl time.Duration) (*RedisCache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis query cache ping: %w", err)
	}
	return &RedisCache{client: client, prefix: "convomem:qc:", ttl: ttl}, nil
}

func (c *RedisCache) key(key string) string    { return c.prefix + key }
func (c *RedisCache) tagKey(tag string) string { return c.prefix + "tag:" + tag }

// Get returns the cached value for key, deserialized from JSON.
func (c *RedisCache) Get(key string) (any, bool) {
	ctx := context.Background()
	val, err := c.client.Get(ctx, c.key(key)).Result()
	if err != nil {
		c.misses.Add(1)
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal([]byte(val), &decoded); err != nil {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return decoded, true
}

// Put stores value under key with the cache's configured TTL (DefaultTTL
// when NewRedisCache was given a non-positive ttl), tagged with tags.
func (c *RedisCache) Put(key string, value any, tags ...string) {
	c.PutWithTTL(key, value, c.ttl, tags...)
}

// PutWithTTL stores value under key with an explicit TTL, recording key in
// each tag's membership set so Invalidate(tag) can find it later.
func (c *RedisCache) PutWithTTL(key string, value any, ttl time.Duration, tags ...string) {
	ctx := context.Background()
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	fullKey := c.key(key)
	if err := c.client.Set(ctx, fullKey, data, ttl).Err(); err != nil {
		return
	}
	for _, tag := range tags {
		c.client.SAdd(ctx, c.tagKey(tag), fullKey)
	}
}

// Invalidate removes every key ever tagged with tag.
func (c *RedisCache) Invalidate(tag string) {
	ctx := context.Background()
	tagKey := c.tagKey(tag)
	keys, err := c.client.SMembers(ctx, tagKey).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	c.client.Del(ctx, keys...)
	c.client.Del(ctx, tagKey)
}

// Clear flushes every convomem-prefixed key from the database.
func (c *RedisCache) Clear() {
	ctx := context.Background()
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		c.client.Del(ctx, iter.Val())
	}
}

// Stats reports hit/miss counters; Size/MaxSize are not tracked remotely
// and are always reported as zero.
func (c *RedisCache) Stats() Stats {
	hits, misses := c.hits.Load(), c.misses.Load()
	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}
	return Stats{Hits: hits, Misses: misses, HitRate: hitRate}
}

// Close releases the underlying Redis connection.
func (c *RedisCache) Close() error {
	return c.client.Close()
}
