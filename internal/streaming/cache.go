package streaming

import (
	"sync"
	"time"

	"mangahub/pkg/models"
)

type cacheEntry struct {
	servers   []models.StreamingServer
	expiresAt time.Time
}

// cache is the per-episode scrape cache of SPEC_FULL §4.7: a mutex-guarded
// plain map, grounded on the teacher's internal/sync.Hub (mu sync.Mutex
// plus a map, Add/Remove-shaped accessors), generalised from a
// client-connection registry to a TTL cache. Expiry is checked lazily on
// read rather than swept by a timer, matching that habit.
type cache struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]cacheEntry
}

func newCache(ttl time.Duration) *cache {
	return &cache{ttl: ttl, m: make(map[string]cacheEntry)}
}

func (c *cache) get(key string) ([]models.StreamingServer, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.m[key]
	if !ok || !time.Now().Before(e.expiresAt) {
		return nil, false
	}
	return e.servers, true
}

func (c *cache) set(key string, servers []models.StreamingServer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = cacheEntry{servers: servers, expiresAt: time.Now().Add(c.ttl)}
}

func (c *cache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.m, key)
}
