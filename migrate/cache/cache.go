// Package cache memoizes schemas derived from a migrations directory, such as
// the result of replaying it on a shadow database. Entries are keyed by the
// directory hash, so an edited directory gets a new entry.
package cache

import (
	"context"
	"sync"

	"github.com/satishbabariya/schema-engine/internal/debug"
	"github.com/satishbabariya/schema-engine/migrate/schema"
)

// Cache maps a directory hash to the schema it produces. The first inserted
// value for a key wins and is never invalidated.
type Cache struct {
	mu      sync.Mutex
	schemas map[string]*schema.Schema
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{schemas: make(map[string]*schema.Schema)}
}

var (
	defaultOnce  sync.Once
	defaultCache *Cache
)

// Default returns the process-wide cache.
func Default() *Cache {
	defaultOnce.Do(func() { defaultCache = New() })
	return defaultCache
}

// Get returns the schema stored for key.
func (c *Cache) Get(key string) (*schema.Schema, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.schemas[key]
	return s, ok
}

// Put stores s under key unless the key is taken, and returns the stored
// schema.
func (c *Cache) Put(key string, s *schema.Schema) *schema.Schema {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.schemas[key]; ok {
		return existing
	}
	c.schemas[key] = s
	return s
}

// GetOrCompute returns the schema for key, computing it on a miss. compute
// runs without the lock held; when two callers race, the first stored result
// is returned to both.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (*schema.Schema, error)) (*schema.Schema, error) {
	if s, ok := c.Get(key); ok {
		debug.Debug("Schema cache hit", "key", key)
		return s, nil
	}
	s, err := compute(ctx)
	if err != nil {
		return nil, err
	}
	return c.Put(key, s), nil
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.schemas)
}
