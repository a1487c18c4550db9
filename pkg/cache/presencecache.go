package cache

import (
	"context"
	"io"
)

// PresenceCache defines the contract for managing ephemeral, real-time state,
// such as which viewers are currently watching a broadcast. It requires explicit
// Set and Delete operations, as this type of data has no persistent source of
// truth to fall back on.
type PresenceCache[K comparable, V any] interface {
	// Set explicitly stores a value for a key. Implementations with expiry
	// restart the key's lifetime on every Set.
	Set(ctx context.Context, key K, value V) error
	// Fetch retrieves a value by its key. A missing key yields an error wrapping ErrNotFound.
	Fetch(ctx context.Context, key K) (V, error)
	// Delete explicitly removes a key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key K) error
	// Closer is included for implementations that manage network connections.
	io.Closer
}
