package rendercache

import (
	"sync"

	"vizflow/internal/viz"
)

// MemCache implements Cache in memory. Used by tests and --no-cache.
type MemCache struct {
	mu    sync.Mutex
	slot  viz.Artifact
	saves int
}

// NewMemCache returns an empty in-memory cache.
func NewMemCache() *MemCache { return &MemCache{} }

func (c *MemCache) Save(a viz.Artifact) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = a
	c.saves++
	return nil
}

func (c *MemCache) Load() (viz.Artifact, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slot, !c.slot.IsZero(), nil
}

func (c *MemCache) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slot = viz.Artifact{}
	return nil
}

func (c *MemCache) Close() error { return nil }

// Saves returns how many times Save was called.
func (c *MemCache) Saves() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.saves
}
