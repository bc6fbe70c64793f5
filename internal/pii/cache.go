package pii

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// DefaultCacheSize bounds the number of compiled configs kept in memory
const DefaultCacheSize = 1024

// CacheStats reports cache usage
type CacheStats struct {
	Hits    uint64
	Misses  uint64
	Entries int
}

type cacheEntry struct {
	config *CompiledConfig
	err    error
}

// ConfigCache memoizes compiled configs by a hash of their canonical JSON.
// Concurrent requests for the same config compile it once.
type ConfigCache struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	maxEntries int
	group      singleflight.Group

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewConfigCache creates a new cache holding up to maxEntries configs. When
// the cache is full it starts over empty.
func NewConfigCache(maxEntries int) *ConfigCache {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheSize
	}
	return &ConfigCache{
		entries:    make(map[string]cacheEntry),
		maxEntries: maxEntries,
	}
}

// Get returns the compiled form of cfg. A config with compile errors is
// cached as well, and Get returns both the usable compiled config and the
// errors every time.
func (c *ConfigCache) Get(cfg *Config) (*CompiledConfig, error) {
	compiled, _, err := c.Lookup(cfg)
	return compiled, err
}

// Lookup is Get that also reports whether the config was already cached
func (c *ConfigCache) Lookup(cfg *Config) (*CompiledConfig, bool, error) {
	if cfg == nil {
		return nil, false, nil
	}
	raw, err := cfg.ToJSON()
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode pii config: %w", err)
	}
	sum := sha256.Sum256(raw)
	key := hex.EncodeToString(sum[:])

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return entry.config, true, entry.err
	}

	v, _, _ := c.group.Do(key, func() (interface{}, error) {
		compiled, err := Compile(cfg)
		entry := cacheEntry{config: compiled, err: err}

		c.misses.Add(1)
		c.mu.Lock()
		if len(c.entries) >= c.maxEntries {
			c.entries = make(map[string]cacheEntry)
		}
		c.entries[key] = entry
		c.mu.Unlock()
		return entry, nil
	})
	entry = v.(cacheEntry)
	return entry.config, false, entry.err
}

// Stats returns a snapshot of cache usage
func (c *ConfigCache) Stats() CacheStats {
	c.mu.RLock()
	entries := len(c.entries)
	c.mu.RUnlock()
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Entries: entries}
}
