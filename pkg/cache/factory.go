package cache

import (
	"fmt"
	"time"
)

// NewFromConfig builds the Cache backend named by backend ("memory" or
// "redis"), sizing/addressing it from maxSize/ttl/redisAddr. An empty
// backend name selects the in-process QueryCache; unknown backend names
// return an error.
func NewFromConfig(backend string, maxSize int, ttl time.Duration, redisAddr string) (Cache, error) {
	switch backend {
	case "redis":
		if redisAddr == "" {
			return nil, fmt.Errorf("cache backend %q requires an address", backend)
		}
		return NewRedisCache(redisAddr, ttl)
	case "", "memory":
		return New(maxSize), nil
	default:
		return nil, fmt.Errorf("unknown cache backend %q", backend)
	}
}
