package ristretto

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/panyam/authflow/cache"
)

// Cache adapts a ristretto cache to cache.Cache. Writes are waited on so a
// value is readable as soon as SetWithTTL returns.
type Cache[V any] struct {
	cache *ristretto.Cache[string, V]
}

func (rc *Cache[V]) Get(key string) (V, bool) {
	return rc.cache.Get(key)
}

func (rc *Cache[V]) SetWithTTL(key string, value V, cost int64, ttl time.Duration) bool {
	ok := rc.cache.SetWithTTL(key, value, cost, ttl)
	// Wait for the item to be processed by the cache
	rc.cache.Wait()
	return ok
}

func (rc *Cache[V]) Del(key string) {
	rc.cache.Del(key)
}

func (rc *Cache[V]) Clear() {
	rc.cache.Clear()
}

// Close stops the cache's background goroutines
func (rc *Cache[V]) Close() {
	rc.cache.Close()
}

var levels = map[string]*struct{ counters, maxCost int64 }{
	"small":  {1e4, 1 << 20},
	"medium": {1e5, 1 << 24},
	"large":  {1e6, 1 << 28},
}

// New creates a cache sized by level: small, medium or large
func New[V any](level string) (*Cache[V], error) {
	l, ok := levels[level]
	if !ok {
		return nil, fmt.Errorf("unknown cache level %q", level)
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: l.counters, // number of keys to track frequency of
		MaxCost:     l.maxCost,
		BufferItems: 64, // number of keys per Get buffer
	})
	if err != nil {
		return nil, err
	}

	return &Cache[V]{cache: c}, nil
}

var _ cache.Cache[string] = (*Cache[string])(nil)
