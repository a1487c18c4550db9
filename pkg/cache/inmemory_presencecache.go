package cache

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryPresenceCache is a thread-safe, in-memory implementation of PresenceCache.
// It has no expiry; it backs single-process deployments and tests.
type InMemoryPresenceCache[K comparable, V any] struct {
	mu   sync.RWMutex
	data map[K]V
}

var _ PresenceCache[string, int] = (*InMemoryPresenceCache[string, int])(nil)

// NewInMemoryPresenceCache creates a new in-memory presence cache.
func NewInMemoryPresenceCache[K comparable, V any]() *InMemoryPresenceCache[K, V] {
	return &InMemoryPresenceCache[K, V]{
		data: make(map[K]V),
	}
}

// Set stores a value for a key.
func (c *InMemoryPresenceCache[K, V]) Set(_ context.Context, key K, value V) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

// Fetch retrieves a value by its key.
func (c *InMemoryPresenceCache[K, V]) Fetch(_ context.Context, key K) (V, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.data[key]
	if !ok {
		var zero V
		return zero, fmt.Errorf("presence key '%v': %w", key, ErrNotFound)
	}
	return value, nil
}

// Delete removes a key.
func (c *InMemoryPresenceCache[K, V]) Delete(_ context.Context, key K) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// Keys returns a snapshot of the keys currently present.
func (c *InMemoryPresenceCache[K, V]) Keys() []K {
	c.mu.RLock()
	defer c.mu.RUnlock()
	keys := make([]K, 0, len(c.data))
	for k := range c.data {
		keys = append(keys, k)
	}
	return keys
}

// Close is a no-op for the in-memory implementation.
func (c *InMemoryPresenceCache[K, V]) Close() error {
	return nil
}
