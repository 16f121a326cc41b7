package runcache

import (
	"errors"
	"fmt"
	"sync"
)

// Well-known cache keys. Each is produced by exactly one entity's transform
// phase and consumed by a later entity in the same run.
const (
	// KeyHypervisorAZ maps short host name to availability zone; published
	// by the aggregate pipeline, consumed by the hypervisor pipeline.
	KeyHypervisorAZ = "hypervisor_az"
	// KeyHasInstance maps project id to presence of at least one instance;
	// published by the instance pipeline, consumed by the project pipeline.
	KeyHasInstance = "has_instance"
)

var ErrNotFound = errors.New("cache entry not found")

// Cache is the run-scoped derived-data store. Some facts are only obtainable
// as a side effect of processing a different entity's richer source data;
// the producing pipeline publishes them here rather than issuing another
// expensive source query. Entries live for exactly one run.
type Cache struct {
	mu      sync.Mutex
	entries map[string]any
}

func New() *Cache {
	return &Cache{entries: make(map[string]any)}
}

// Publish stores a value under the key, overwriting any previous value.
func (c *Cache) Publish(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
}

// Fetch returns the value published under the key, or ErrNotFound if no
// producer has run yet this run.
func (c *Cache) Fetch(key string) (any, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return v, nil
}

// Reset drops all entries. Called at the start of every run so nothing leaks
// across runs.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]any)
}
