package livestatus

import (
	"context"
	"slices"

	"github.com/illmade-knight/go-livestatus/pkg/metrics"
	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// startPollerLocked starts the poll loop unless one is already running. A new
// loop waits for the previous one to exit before creating its ticker, so there
// is never more than one ticker.
func (h *Hub) startPollerLocked() {
	if h.poller != nil || h.closed {
		return
	}
	stop := make(chan struct{})
	done := make(chan struct{})
	prev := h.pollerDone
	h.poller = stop
	h.pollerDone = done
	go h.runPoller(stop, done, prev)
}

func (h *Hub) stopPollerLocked() {
	if h.poller == nil {
		return
	}
	close(h.poller)
	h.poller = nil
}

func (h *Hub) runPoller(stop <-chan struct{}, done chan<- struct{}, prev <-chan struct{}) {
	defer close(done)
	if prev != nil {
		select {
		case <-prev:
		case <-stop:
			return
		}
	}

	ticker := h.clock.NewTicker(h.cfg.PollInterval)
	defer ticker.Stop()
	h.logger.Debug().Dur("interval", h.cfg.PollInterval).Msg("Poller started.")

	for {
		select {
		case <-stop:
			h.logger.Debug().Msg("Poller stopped.")
			return
		case <-ticker.Chan():
			select {
			case <-stop:
				h.logger.Debug().Msg("Poller stopped.")
				return
			default:
			}
			// Queries run on the hub context so that stopping an idle poller
			// never cancels a query already on the wire.
			h.Poll(h.ctx)
		}
	}
}

// Poll runs a single tick: it queries every registered key in chunks, one chunk
// at a time, and fans the results out. A failed chunk is skipped without
// touching the cache. The ticker calls Poll; it is exported so callers can force
// a refresh.
func (h *Hub) Poll(ctx context.Context) {
	ids := h.pollableIDs()
	if len(ids) == 0 {
		metrics.PollTicksTotal.WithLabelValues("idle").Inc()
		return
	}
	metrics.PollTicksTotal.WithLabelValues("queried").Inc()
	metrics.PollIDsPerTick.Observe(float64(len(ids)))

	for chunk := range slices.Chunk(ids, h.cfg.ChunkSize) {
		if ctx.Err() != nil {
			return
		}
		headers := h.Headers()
		began := h.clock.Now()
		result, err := h.querier.QueryStatus(ctx, chunk, headers)
		metrics.PollQueryDuration.Observe(h.clock.Since(began).Seconds())
		if err != nil {
			metrics.PollQueriesTotal.WithLabelValues("error").Inc()
			h.logger.Warn().Err(err).Int("chunk_size", len(chunk)).Msg("Status query failed, keeping cached values until next tick.")
			continue
		}
		metrics.PollQueriesTotal.WithLabelValues("success").Inc()
		h.apply(chunk, result)
	}
}

// pollableIDs returns the sorted numeric ids of all registered keys, skipping
// keys that are not canonical positive integers.
func (h *Hub) pollableIDs() []int64 {
	h.mu.Lock()
	ids := make([]int64, 0, len(h.listeners))
	for key := range h.listeners {
		id, ok := types.ParseEntityID(key)
		if !ok {
			h.logger.Debug().Str("key", key).Msg("Skipping key that is not a valid entity id.")
			continue
		}
		ids = append(ids, id)
	}
	h.mu.Unlock()
	slices.Sort(ids)
	return ids
}

type delivery struct {
	subs []*Subscription
	seq  uint64
	st   types.Status
	ok   bool
}

// apply writes a chunk's results into the cache and delivers them. Ids present
// in the result overwrite the cache; omitted ids are delivered as "no data" and
// leave the cache untouched. Delivery happens outside the lock on a snapshot of
// each key's listeners.
func (h *Hub) apply(chunk []int64, result map[string]types.Status) {
	h.mu.Lock()
	deliveries := make([]delivery, 0, len(chunk))
	for _, id := range chunk {
		key := types.EntityKey(id)
		st, ok := result[key]
		if ok {
			h.cache.Store(key, st)
		}
		subs := h.listeners[key]
		if len(subs) == 0 {
			continue
		}
		h.seq++
		deliveries = append(deliveries, delivery{subs: slices.Clone(subs), seq: h.seq, st: st, ok: ok})
	}
	h.mu.Unlock()

	for _, d := range deliveries {
		for _, sub := range d.subs {
			sub.deliver(d.seq, d.st, d.ok)
		}
	}
}
