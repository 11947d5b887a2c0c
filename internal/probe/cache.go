package probe

import (
	"sync"
	"time"

	"github.com/khanhnv2901/seca-gap/internal/domain/assessment"
)

// Cache stores observation sets keyed by target, probe kind and endpoint
// fingerprint. Implementations must be safe for concurrent use. A nil
// Cache is valid and disables caching.
type Cache interface {
	Get(key string) ([]assessment.Observation, bool)
	Set(key string, obs []assessment.Observation, ttl time.Duration)
}

type cacheEntry struct {
	obs     []assessment.Observation
	expires time.Time
}

// MemoryCache is an in-process TTL cache.
type MemoryCache struct {
	data sync.Map
	now  func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{now: time.Now}
}

// Get returns a copy of the cached observations when present and fresh.
func (c *MemoryCache) Get(key string) ([]assessment.Observation, bool) {
	v, ok := c.data.Load(key)
	if !ok {
		return nil, false
	}
	entry := v.(cacheEntry)
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		c.data.Delete(key)
		return nil, false
	}
	return append([]assessment.Observation(nil), entry.obs...), true
}

// Set stores obs under key. A non-positive ttl never expires.
func (c *MemoryCache) Set(key string, obs []assessment.Observation, ttl time.Duration) {
	entry := cacheEntry{obs: append([]assessment.Observation(nil), obs...)}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.data.Store(key, entry)
}
