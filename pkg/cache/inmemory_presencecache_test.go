package cache_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type viewerTestValue struct {
	ViewerID string    `json:"viewerId"`
	LastSeen time.Time `json:"lastSeen"`
}

func TestInMemoryPresenceCache(t *testing.T) {
	ctx := context.Background()
	const testKey = "presence:7:viewer-a"
	testValue := viewerTestValue{ViewerID: "viewer-a", LastSeen: time.Unix(1700000000, 0)}

	c := cache.NewInMemoryPresenceCache[string, viewerTestValue]()

	t.Run("Fetch miss", func(t *testing.T) {
		_, err := c.Fetch(ctx, "presence:7:nobody")
		require.Error(t, err)
		assert.ErrorIs(t, err, cache.ErrNotFound)
	})

	t.Run("Set, Fetch, and Delete cycle", func(t *testing.T) {
		// Act: Set a value
		require.NoError(t, c.Set(ctx, testKey, testValue))

		// Assert: Fetch the value back
		retrieved, err := c.Fetch(ctx, testKey)
		require.NoError(t, err)
		assert.Equal(t, testValue, retrieved)
		assert.Equal(t, []string{testKey}, c.Keys())

		// Act: Delete the value, twice to prove idempotency
		require.NoError(t, c.Delete(ctx, testKey))
		require.NoError(t, c.Delete(ctx, testKey))

		// Assert: Fetching again should result in an error
		_, err = c.Fetch(ctx, testKey)
		require.ErrorIs(t, err, cache.ErrNotFound)
		assert.Empty(t, c.Keys())
	})
}
