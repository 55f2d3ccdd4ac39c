package handlers

import (
	"sync"

	"github.com/tomhv/usagegraph/internal/model"
)

// GraphCache holds per-user computed graph results. Results are rebuilt
// from raw messages on demand and dropped whenever new data arrives, so
// the database never stores derived values.
type GraphCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
}

type cacheEntry struct {
	generation int
	result     model.GraphResult
	valid      bool
}

// NewGraphCache creates an empty graph cache
func NewGraphCache() *GraphCache {
	return &GraphCache{
		entries: make(map[string]*cacheEntry),
	}
}

// Get returns the cached result for a user and whether it is still valid
func (c *GraphCache) Get(userID string) (model.GraphResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[userID]
	if !exists || !e.valid {
		return model.GraphResult{}, false
	}
	return e.result, true
}

// Begin marks the start of a rebuild and returns a generation token.
// If an invalidation lands while the rebuild is running, the generation
// will no longer match and the stale result is discarded.
func (c *GraphCache) Begin(userID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[userID]
	if !exists {
		e = &cacheEntry{}
		c.entries[userID] = e
	}
	e.generation++
	return e.generation
}

// Store saves a rebuilt result if no invalidation happened since Begin
func (c *GraphCache) Store(userID string, generation int, result model.GraphResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[userID]
	if !exists || e.generation != generation {
		// Stale rebuild
		return
	}
	e.result = result
	e.valid = true
}

// Invalidate drops the cached result for a user after new messages sync
func (c *GraphCache) Invalidate(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, exists := c.entries[userID]
	if !exists {
		return
	}
	e.generation++
	e.valid = false
}
