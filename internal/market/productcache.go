package market

import (
	"sync"
	"time"
)

// productCacheTTL matches the spec's 5-minute product-list cache window.
const productCacheTTL = 5 * time.Minute

// productCache is the mutex-guarded in-process fallback for the
// TTL'd product list, keyed per quote currency. A distributed cache
// (redis_cache.go's pattern) is unnecessary here: the product list is
// small and every process instance fetches its own copy cheaply enough
// that cross-instance sharing isn't worth the coordination.
type productCache struct {
	mu      sync.Mutex
	entries map[string]productCacheEntry
}

type productCacheEntry struct {
	products  []Product
	fetchedAt time.Time
}

func newProductCache() *productCache {
	return &productCache{entries: make(map[string]productCacheEntry)}
}

func (c *productCache) get(quote string) ([]Product, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.entries[quote]
	if !ok || time.Since(entry.fetchedAt) > productCacheTTL {
		return nil, false
	}
	return entry.products, true
}

func (c *productCache) set(quote string, products []Product) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[quote] = productCacheEntry{products: products, fetchedAt: time.Now()}
}
