package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryCache is a generic, thread-safe, in-memory cache. Entries are never
// evicted: a value written once stays readable until it is overwritten, which is
// what lets a late subscriber see the last status even after everyone else left.
type InMemoryCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

var _ Cache[string, int] = (*InMemoryCache[string, int])(nil)

// NewInMemoryCache creates a new in-memory cache.
func NewInMemoryCache[K comparable, V any]() *InMemoryCache[K, V] {
	return &InMemoryCache[K, V]{
		data: make(map[K]V),
	}
}

// Lookup returns the stored value and whether one exists.
func (c *InMemoryCache[K, V]) Lookup(key K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.data[key]
	return value, ok
}

// Store overwrites the value for key.
func (c *InMemoryCache[K, V]) Store(key K, value V) {
	c.mu.Lock()
	c.data[key] = value
	c.mu.Unlock()
}

// Len reports how many keys hold a value.
func (c *InMemoryCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// FetchFromCache retrieves an item from the cache.
func (c *InMemoryCache[K, V]) FetchFromCache(_ context.Context, key K) (V, error) {
	value, ok := c.Lookup(key)
	if !ok {
		var zero V
		return zero, fmt.Errorf("key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// WriteToCache adds an item to the cache.
func (c *InMemoryCache[K, V]) WriteToCache(_ context.Context, key K, value V) error {
	c.Store(key, value)
	return nil
}
