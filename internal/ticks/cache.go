package ticks

import (
	"context"
	"sync"
)

// Cache wraps a Source so each symbol is loaded at most once. Cached batches
// are shared between callers and must be treated as read-only.
type Cache struct {
	src Source

	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	once  sync.Once
	batch Batch
	err   error
}

var _ Source = (*Cache)(nil)

// NewCache creates a cache in front of src.
func NewCache(src Source) *Cache {
	return &Cache{src: src, entries: make(map[string]*cacheEntry)}
}

// Load returns the symbol's batch, loading it on first use. Concurrent calls
// for the same symbol wait for the single load in flight.
func (c *Cache) Load(ctx context.Context, symbol string) (Batch, error) {
	c.mu.Lock()
	e, ok := c.entries[symbol]
	if !ok {
		e = &cacheEntry{}
		c.entries[symbol] = e
	}
	c.mu.Unlock()

	e.once.Do(func() {
		e.batch, e.err = c.src.Load(ctx, symbol)
	})
	return e.batch, e.err
}
