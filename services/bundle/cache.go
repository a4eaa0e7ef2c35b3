package bundle

import (
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"widget-controlplane/services/license"
)

var (
	cacheHits = promauto.NewCounter(prometheus.CounterOpts{Name: "bundle_cache_hits_total"})
	cacheMiss = promauto.NewCounter(prometheus.CounterOpts{Name: "bundle_cache_miss_total"})
)

// Fingerprint captures every flag-affecting license field. A stale fingerprint
// on a cached entry means the license changed and the bundle must be rebuilt.
func Fingerprint(lic *license.License) string {
	return fmt.Sprintf("%s|%t|%d", lic.Tier, lic.BrandingEnabled, lic.DomainLimit)
}

type entry struct {
	fingerprint string
	bundle      string
}

// Cache holds injected bundles keyed by license id. It is an explicitly
// constructed handle, guarded by a RWMutex so concurrent readers never observe
// a torn entry. The map is unbounded with no eviction, which is acceptable at
// current license counts but is a known scaling limitation.
type Cache struct {
	mu    sync.RWMutex
	items map[string]entry
}

func NewCache() *Cache {
	return &Cache{
		items: make(map[string]entry),
	}
}

// Get returns the cached bundle for the license if one exists and its
// fingerprint still matches.
func (c *Cache) Get(licenseID, fingerprint string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[licenseID]
	if !ok || v.fingerprint != fingerprint {
		return "", false
	}
	return v.bundle, true
}

func (c *Cache) Set(licenseID, fingerprint, bundle string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[licenseID] = entry{fingerprint: fingerprint, bundle: bundle}
}

func (c *Cache) Invalidate(licenseID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, licenseID)
}

// Clear drops every entry, forcing the next Serve for any license to
// recompute.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]entry)
}

func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
