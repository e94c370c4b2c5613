package slotter

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"venue-rails/pkg/metrics"
	"venue-rails/pkg/utils"
)

// parseCache holds finished parse results keyed by query fingerprint.
// Entries expire after their TTL; size pressure evicts LRU-first.
type parseCache struct {
	lru *expirable.LRU[string, *Result]
}

func newParseCache(size int, ttl time.Duration) *parseCache {
	if size <= 0 || ttl <= 0 {
		return nil
	}
	onEvict := func(string, *Result) {
		metrics.CacheEvents.WithLabelValues("parse", "evict").Inc()
	}
	return &parseCache{lru: expirable.NewLRU[string, *Result](size, onEvict, ttl)}
}

func (c *parseCache) Get(key string) (*Result, bool) { return c.lru.Get(key) }

func (c *parseCache) Add(key string, r *Result) { c.lru.Add(key, r) }

func (c *parseCache) Len() int { return c.lru.Len() }

// fingerprint builds the cache identity. Coordinates are rounded to four
// decimals (roughly eleven meters) so nearby callers share entries.
func fingerprint(normQuery, area string, lat, lng *float64) string {
	var b strings.Builder
	b.WriteString(normQuery)
	b.WriteByte('|')
	b.WriteString(utils.FoldText(area))
	b.WriteByte('|')
	if lat != nil && lng != nil {
		fmt.Fprintf(&b, "%.4f,%.4f", *lat, *lng)
	}
	return b.String()
}
