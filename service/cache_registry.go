package service

import (
	"fmt"
	"sort"
	"sync"

	"github.com/layer-3/remitgate/core"
)

// Cache is an in-memory structure the admin endpoints can inspect and purge
type Cache interface {
	Len() int
	Purge()
}

// CacheStat describes one registered cache
type CacheStat struct {
	Name    string `json:"name"`
	Entries int    `json:"entries"`
}

// CacheRegistry names the process-local caches for the admin endpoints
type CacheRegistry struct {
	mu     sync.RWMutex
	caches map[string]Cache
}

// NewCacheRegistry creates an empty registry
func NewCacheRegistry() *CacheRegistry {
	return &CacheRegistry{caches: make(map[string]Cache)}
}

// Register adds or replaces a cache under name
func (r *CacheRegistry) Register(name string, cache Cache) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caches[name] = cache
}

// Stats lists every cache sorted by name
func (r *CacheRegistry) Stats() []CacheStat {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make([]CacheStat, 0, len(r.caches))
	for name, cache := range r.caches {
		stats = append(stats, CacheStat{Name: name, Entries: cache.Len()})
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Name < stats[j].Name })
	return stats
}

// Purge empties the named cache
func (r *CacheRegistry) Purge(name string) error {
	r.mu.RLock()
	cache, ok := r.caches[name]
	r.mu.RUnlock()

	if !ok {
		return fmt.Errorf("cache %q: %w", name, core.ErrNotFound)
	}
	cache.Purge()
	return nil
}
