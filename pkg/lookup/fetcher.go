// Package lookup answers one-off status requests for keys that may not be
// watched: cache first, then a single-id query against the source, with the
// result written back to the cache.
package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
)

// ErrInvalidKey is returned for keys that are not entity ids.
var ErrInvalidKey = errors.New("key is not a valid entity id")

// Fetcher fetches the status for one key. ok is false when the source has no
// data for the key.
type Fetcher func(ctx context.Context, key string) (st types.Status, ok bool, err error)

// FetcherConfig holds configuration for the cache-fallback fetcher.
type FetcherConfig struct {
	CacheWriteTimeout time.Duration
}

// CacheFallbackFetcher implements a cache-then-source strategy.
type CacheFallbackFetcher struct {
	cacheTimeout time.Duration
	cache        cache.Cache[string, types.Status]
	source       livestatus.StatusQuerier
	headers      func() http.Header
	logger       zerolog.Logger
}

// NewCacheFallbackFetcher creates a fetcher. headers supplies the auth headers
// for source queries and may be nil.
func NewCacheFallbackFetcher(
	cfg *FetcherConfig,
	c cache.Cache[string, types.Status],
	source livestatus.StatusQuerier,
	headers func() http.Header,
	logger zerolog.Logger,
) (*CacheFallbackFetcher, error) {
	if c == nil || source == nil {
		return nil, errors.New("cache and source are required")
	}
	timeout := 5 * time.Second
	if cfg != nil && cfg.CacheWriteTimeout > 0 {
		timeout = cfg.CacheWriteTimeout
	}
	if headers == nil {
		headers = func() http.Header { return nil }
	}
	return &CacheFallbackFetcher{
		cacheTimeout: timeout,
		cache:        c,
		source:       source,
		headers:      headers,
		logger:       logger.With().Str("component", "CacheFallbackFetcher").Logger(),
	}, nil
}

// Fetch returns the cached status for key, or queries the source on a miss.
func (f *CacheFallbackFetcher) Fetch(ctx context.Context, key string) (types.Status, bool, error) {
	st, err := f.cache.FetchFromCache(ctx, key)
	if err == nil {
		f.logger.Debug().Str("key", key).Msg("Cache hit.")
		return st, true, nil
	}
	if !errors.Is(err, cache.ErrNotFound) {
		f.logger.Warn().Err(err).Str("key", key).Msg("Cache read failed, falling back to source.")
	}

	id, ok := types.ParseEntityID(key)
	if !ok {
		return types.Status{}, false, fmt.Errorf("%q: %w", key, ErrInvalidKey)
	}
	result, err := f.source.QueryStatus(ctx, []int64{id}, f.headers())
	if err != nil {
		return types.Status{}, false, fmt.Errorf("error fetching from source: %w", err)
	}
	st, ok = result[key]
	if !ok {
		return types.Status{}, false, nil
	}

	writeCtx, cancel := context.WithTimeout(context.Background(), f.cacheTimeout)
	defer cancel()
	if err := f.cache.WriteToCache(writeCtx, key, st); err != nil {
		f.logger.Warn().Err(err).Str("key", key).Msg("Failed to write fetched status to cache.")
	}
	return st, true, nil
}

// Func returns Fetch as a Fetcher.
func (f *CacheFallbackFetcher) Func() Fetcher {
	return f.Fetch
}
