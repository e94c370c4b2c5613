package rails

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"venue-rails/pkg/metrics"
)

// railsCache holds composed responses for a short TTL so repeated identical
// requests skip the fan-out entirely.
type railsCache struct {
	lru *expirable.LRU[string, *Response]
}

func newRailsCache(size int, ttl time.Duration) *railsCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	onEvict := func(string, *Response) {
		metrics.CacheEvents.WithLabelValues("rails", "evict").Inc()
	}
	return &railsCache{lru: expirable.NewLRU[string, *Response](size, onEvict, ttl)}
}

func (c *railsCache) Get(key string) (*Response, bool) {
	r, ok := c.lru.Get(key)
	if ok {
		metrics.CacheEvents.WithLabelValues("rails", "hit").Inc()
	} else {
		metrics.CacheEvents.WithLabelValues("rails", "miss").Inc()
	}
	return r, ok
}

func (c *railsCache) Add(key string, r *Response) { c.lru.Add(key, r) }

func (c *railsCache) Len() int { return c.lru.Len() }
