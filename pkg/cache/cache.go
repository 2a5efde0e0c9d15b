package cache

import "time"

// Cache is the read/invalidate surface repositories depend on. QueryCache
// (process-local) and RedisCache (shared across instances) both implement
// it; config.CacheBackend selects which one NewFromConfig binds at startup.
type Cache interface {
	Get(key string) (any, bool)
	Put(key string, value any, tags ...string)
	PutWithTTL(key string, value any, ttl time.Duration, tags ...string)
	Invalidate(tag string)
	Clear()
	Stats() Stats
}
