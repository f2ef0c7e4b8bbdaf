package embedding

import (
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultCacheSize = 1000
	defaultCacheTTL  = time.Hour
)

// QueryCache is a bounded, expiring LRU of query vectors keyed by normalized text.
// It is safe for concurrent use and hands out copies.
type QueryCache struct {
	lru *expirable.LRU[string, []float32]
}

func NewQueryCache(size int, ttl time.Duration) *QueryCache {
	if size <= 0 {
		size = defaultCacheSize
	}
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &QueryCache{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

// CacheKey folds case and whitespace so trivially different queries share an entry.
func CacheKey(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

func (c *QueryCache) Get(key string) ([]float32, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return copyVector(v), true
}

func (c *QueryCache) Add(key string, v []float32) {
	c.lru.Add(key, copyVector(v))
}

func (c *QueryCache) Len() int {
	return c.lru.Len()
}

func (c *QueryCache) Purge() {
	c.lru.Purge()
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}
