package cache

import (
	"sort"
	"sync"

	"github.com/obsproc/quicklook/internal/datastore"
)

// VisitValidityCache remembers which visits already validated against
// the working observation date, keyed by visit with the observation
// date the visit validated under. The discovery service consults it to
// skip re-validating visits on every refresh and removes entries whose
// date no longer matches.
type VisitValidityCache struct {
	mu      sync.RWMutex
	entries map[datastore.Visit]string
}

// NewVisitValidityCache returns an empty cache.
func NewVisitValidityCache() *VisitValidityCache {
	return &VisitValidityCache{entries: make(map[datastore.Visit]string)}
}

// Get returns the observation date the visit validated under.
func (c *VisitValidityCache) Get(visit datastore.Visit) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	date, ok := c.entries[visit]
	return date, ok
}

// Put records a validated visit.
func (c *VisitValidityCache) Put(visit datastore.Visit, obsDate string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[visit] = obsDate
}

// Delete removes a visit. Removing an absent visit is a no-op.
func (c *VisitValidityCache) Delete(visit datastore.Visit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, visit)
}

// Len reports the number of cached visits.
func (c *VisitValidityCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Snapshot returns the cached visits sorted ascending. The returned
// slice is the caller's to keep.
func (c *VisitValidityCache) Snapshot() []datastore.Visit {
	c.mu.RLock()
	defer c.mu.RUnlock()
	visits := make([]datastore.Visit, 0, len(c.entries))
	for v := range c.entries {
		visits = append(visits, v)
	}
	sort.Slice(visits, func(i, j int) bool { return visits[i] < visits[j] })
	return visits
}
