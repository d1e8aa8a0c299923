// Package cache holds server-fetched data (such as the current user) so
// repeated reads do not hit the API. Auth transitions invalidate it.
package cache

import "time"

// Cache defines a generic interface compatible with Ristretto and other caches
type Cache[V any] interface {
	// Get retrieves a value from the cache
	Get(key string) (V, bool)

	// SetWithTTL stores a value with cost and TTL, returning true if successful
	SetWithTTL(key string, value V, cost int64, ttl time.Duration) bool

	// Del removes a key
	Del(key string)

	// Clear removes every key
	Clear()
}

// Keys of cached queries
const (
	KeyCurrentUser = "auth:me"
)
