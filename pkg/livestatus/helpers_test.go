package livestatus_test

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

// fakeQuerier records every query and answers through respond.
type fakeQuerier struct {
	mu       sync.Mutex
	calls    [][]int64
	headers  []http.Header
	inFlight atomic.Int32
	maxSeen  atomic.Int32
	respond  func(ids []int64) (map[string]types.Status, error)
}

func (q *fakeQuerier) QueryStatus(_ context.Context, ids []int64, headers http.Header) (map[string]types.Status, error) {
	n := q.inFlight.Add(1)
	defer q.inFlight.Add(-1)
	for {
		seen := q.maxSeen.Load()
		if n <= seen || q.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}

	q.mu.Lock()
	q.calls = append(q.calls, slices.Clone(ids))
	q.headers = append(q.headers, headers)
	respond := q.respond
	q.mu.Unlock()

	if respond == nil {
		return map[string]types.Status{}, nil
	}
	return respond(ids)
}

func (q *fakeQuerier) Calls() [][]int64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.calls)
}

func (q *fakeQuerier) Headers() []http.Header {
	q.mu.Lock()
	defer q.mu.Unlock()
	return slices.Clone(q.headers)
}

func (q *fakeQuerier) SetRespond(fn func(ids []int64) (map[string]types.Status, error)) {
	q.mu.Lock()
	q.respond = fn
	q.mu.Unlock()
}

// delivered is a single listener invocation.
type delivered struct {
	Status types.Status
	OK     bool
}

// deliveryLog collects listener invocations.
type deliveryLog struct {
	mu  sync.Mutex
	got []delivered
}

func (l *deliveryLog) Listener() livestatus.Listener {
	return func(st types.Status, ok bool) {
		l.mu.Lock()
		l.got = append(l.got, delivered{Status: st, OK: ok})
		l.mu.Unlock()
	}
}

func (l *deliveryLog) All() []delivered {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.got)
}

func noData() delivered { return delivered{} }

func data(ended bool, viewers int) delivered {
	return delivered{Status: types.Status{Ended: ended, Viewers: viewers}, OK: true}
}

// newTestHub builds a hub on a fake clock and closes it when the test ends.
func newTestHub(t *testing.T, cfg *livestatus.HubConfig, q livestatus.StatusQuerier) (*livestatus.Hub, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClock()
	hub, err := livestatus.NewHub(cfg, q, clock, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(hub.Close)
	return hub, clock
}

func staticStatus(values map[string]types.Status) func(ids []int64) (map[string]types.Status, error) {
	return func(ids []int64) (map[string]types.Status, error) {
		out := make(map[string]types.Status)
		for _, id := range ids {
			key := types.EntityKey(id)
			if v, ok := values[key]; ok {
				out[key] = v
			}
		}
		return out, nil
	}
}
