package cache

import (
	"sync"

	"github.com/pdazone/engine/pkg/core"
)

// ZoneCache keeps the operator-managed zones in memory so ticks avoid a
// store scan. It is filled lazily and dropped whenever a zone is written.
//
// Every Reset starts a new generation. A reader that missed takes the
// generation before reading the store and hands it back to Fill, which
// ignores zone sets read before a later Reset.
type ZoneCache struct {
	mu     sync.RWMutex
	zones  []core.Zone
	loaded bool
	gen    uint64
}

// NewZoneCache creates an empty ZoneCache
func NewZoneCache() *ZoneCache {
	return &ZoneCache{}
}

// All returns the cached zones, or the current generation and false on a miss.
func (c *ZoneCache) All() ([]core.Zone, uint64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.loaded {
		return nil, c.gen, false
	}
	out := make([]core.Zone, len(c.zones))
	copy(out, c.zones)
	return out, c.gen, true
}

// Fill stores zones read during generation gen. It reports false and keeps
// the cache empty when a Reset happened since.
func (c *ZoneCache) Fill(gen uint64, zones []core.Zone) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.zones = append([]core.Zone(nil), zones...)
	c.loaded = true
	return true
}

// Reset empties the cache and starts a new generation.
func (c *ZoneCache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.zones = nil
	c.loaded = false
	c.gen++
}
