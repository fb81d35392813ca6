// Package cache holds the two caches that keep the dashboard cheap to
// refresh: shared per-visit resource handles and the visit validity
// map the discovery service maintains.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/obsproc/quicklook/internal/datastore"
)

// HandleKey identifies one cached resource handle.
type HandleKey struct {
	BaseCollection string
	Visit          datastore.Visit
}

// OpenFunc constructs the handle for a key. Called at most once per key
// no matter how many goroutines ask concurrently.
type OpenFunc func(ctx context.Context) (*datastore.Handle, error)

type resourceEntry struct {
	ready  chan struct{} // closed when handle/err are set
	handle *datastore.Handle
	err    error
}

// ResourceCache deduplicates handle construction across concurrent
// build tasks. Entries are append-only: a visit's sub-collection is
// immutable once published, so a handle never goes stale.
//
// Failed constructions are not cached; the next Acquire retries.
type ResourceCache struct {
	mu            sync.Mutex
	entries       map[HandleKey]*resourceEntry
	constructions atomic.Int64
}

// NewResourceCache returns an empty cache.
func NewResourceCache() *ResourceCache {
	return &ResourceCache{entries: make(map[HandleKey]*resourceEntry)}
}

// Acquire returns the shared handle for key, constructing it with open
// if no goroutine has yet. Concurrent callers for the same key block on
// the single in-flight construction rather than racing their own.
func (c *ResourceCache) Acquire(ctx context.Context, key HandleKey, open OpenFunc) (*datastore.Handle, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		c.mu.Unlock()
		select {
		case <-e.ready:
			return e.handle, e.err
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	e := &resourceEntry{ready: make(chan struct{})}
	c.entries[key] = e
	c.mu.Unlock()

	c.constructions.Add(1)
	e.handle, e.err = open(ctx)
	close(e.ready)

	if e.err != nil {
		// Drop the failed entry so a later Acquire can retry.
		c.mu.Lock()
		if c.entries[key] == e {
			delete(c.entries, key)
		}
		c.mu.Unlock()
	}
	return e.handle, e.err
}

// Constructions reports how many times an OpenFunc has actually run.
// Exposed so callers can assert construction is deduplicated.
func (c *ResourceCache) Constructions() int64 {
	return c.constructions.Load()
}

// Len reports the number of cached handles.
func (c *ResourceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
