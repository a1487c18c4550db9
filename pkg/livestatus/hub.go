// Package livestatus multiplexes per-entity status subscriptions onto a single,
// periodic, batched poll of a status endpoint, caching the results and fanning
// them out to every interested listener.
package livestatus

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"sync"

	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/illmade-knight/go-livestatus/pkg/metrics"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Listener receives status deliveries for one key. ok is false when there is
// no data for the key: nothing cached yet on subscribe, or the latest poll
// response omitted the id.
type Listener func(st types.Status, ok bool)

var _ cache.Cache[string, types.Status] = (*Hub)(nil)

// Hub owns the status cache, the listener registry and the poller.
type Hub struct {
	cfg     HubConfig
	querier StatusQuerier
	clock   clockwork.Clock
	logger  zerolog.Logger
	cache   *cache.InMemoryCache[string, types.Status]

	// ctx bounds in-flight queries; only Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	listeners  map[string][]*Subscription
	subCount   int
	headers    http.Header
	seq        uint64
	poller     chan struct{}   // stop channel of the running poller, nil when stopped
	pollerDone <-chan struct{} // closed when the most recently started poller exits
	closed     bool
}

// NewHub creates a Hub. The poller is not started until the first Subscribe.
// A nil clock means the real clock.
func NewHub(
	cfg *HubConfig,
	querier StatusQuerier,
	clock clockwork.Clock,
	logger zerolog.Logger,
) (*Hub, error) {
	if cfg == nil {
		return nil, errors.New("hub config cannot be nil")
	}
	if querier == nil {
		return nil, errors.New("status querier cannot be nil")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		cfg:       cfg.withDefaults(),
		querier:   querier,
		clock:     clock,
		logger:    logger.With().Str("component", "LiveStatusHub").Logger(),
		cache:     cache.NewInMemoryCache[string, types.Status](),
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string][]*Subscription),
	}, nil
}

// Subscribe registers fn for key and synchronously delivers the cached value,
// or "no data" when nothing has been seen for key yet, before returning. It
// starts the poller if it is not already running.
//
// If a concurrent poll fans a newer value out to the new subscription before
// that initial delivery runs, the initial delivery is skipped: a listener
// never sees a value older than one it already got.
func (h *Hub) Subscribe(key string, fn Listener) *Subscription {
	sub := &Subscription{hub: h, key: key, fn: fn}

	h.mu.Lock()
	h.seq++
	seq := h.seq
	st, ok := h.cache.Lookup(key)
	closed := h.closed
	if !closed {
		h.listeners[key] = append(h.listeners[key], sub)
		h.subCount++
		h.recordSizesLocked()
		h.startPollerLocked()
	}
	h.mu.Unlock()

	sub.deliver(seq, st, ok)
	if closed {
		sub.closed.Store(true)
	}
	return sub
}

// Unsubscribe removes sub from its key. When the key has no listeners left it
// is dropped from the registry and will not be polled again; its cached value
// is kept. Unsubscribing twice is a no-op.
func (h *Hub) Unsubscribe(sub *Subscription) {
	if sub == nil || !sub.closed.CompareAndSwap(false, true) {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.listeners[sub.key]
	i := slices.Index(subs, sub)
	if i < 0 {
		return
	}
	subs = slices.Delete(slices.Clone(subs), i, i+1)
	if len(subs) == 0 {
		delete(h.listeners, sub.key)
	} else {
		h.listeners[sub.key] = subs
	}
	h.subCount--
	h.recordSizesLocked()

	if len(h.listeners) == 0 && h.cfg.StopWhenIdle {
		h.stopPollerLocked()
	}
}

// SetHeaders replaces the headers sent with subsequent status queries.
func (h *Hub) SetHeaders(headers http.Header) {
	h.mu.Lock()
	h.headers = headers.Clone()
	h.mu.Unlock()
}

// Headers returns a copy of the current query headers.
func (h *Hub) Headers() http.Header {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.headers.Clone()
}

// Lookup returns the last known status for key.
func (h *Hub) Lookup(key string) (types.Status, bool) {
	return h.cache.Lookup(key)
}

// FetchFromCache is Lookup as a cache.Cache; a miss wraps cache.ErrNotFound.
func (h *Hub) FetchFromCache(ctx context.Context, key string) (types.Status, error) {
	return h.cache.FetchFromCache(ctx, key)
}

// WriteToCache stores a status obtained outside the poll loop, such as a
// one-off lookup. Listeners are not notified; the next tick delivers as usual.
func (h *Hub) WriteToCache(ctx context.Context, key string, st types.Status) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cache.WriteToCache(ctx, key, st)
}

// Keys returns the keys that currently have at least one listener, sorted.
func (h *Hub) Keys() []string {
	h.mu.Lock()
	keys := make([]string, 0, len(h.listeners))
	for k := range h.listeners {
		keys = append(keys, k)
	}
	h.mu.Unlock()
	slices.Sort(keys)
	return keys
}

// ListenerCount returns the number of listeners registered for key.
func (h *Hub) ListenerCount(key string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.listeners[key])
}

// Close stops the poller, cancels in-flight queries and waits for the poller
// goroutine to exit. Subscriptions made after Close still receive the cached
// value but are never polled.
func (h *Hub) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	h.stopPollerLocked()
	done := h.pollerDone
	h.mu.Unlock()

	h.cancel()
	if done != nil {
		<-done
	}
	h.logger.Info().Msg("Live status hub closed.")
}

func (h *Hub) recordSizesLocked() {
	metrics.RegisteredKeys.Set(float64(len(h.listeners)))
	metrics.Subscriptions.Set(float64(h.subCount))
}
