// Package cache provides the last-known-value store behind the status hub and the
// ephemeral presence stores used by store-backed presence clients.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is wrapped by Fetch-style lookups when a key holds no value.
var ErrNotFound = errors.New("key not found")

// Cache is a generic interface for a caching layer.
type Cache[K any, V any] interface {
	// FetchFromCache retrieves an item from the cache.
	FetchFromCache(ctx context.Context, key K) (V, error)
	// WriteToCache adds an item to the cache, replacing any previous value.
	WriteToCache(ctx context.Context, key K, value V) error
}
