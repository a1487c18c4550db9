package livestatus

import (
	"sync"

	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// Watch is a reactive view of one key: it always holds the latest delivered
// value and signals on Changed whenever a new one arrives.
type Watch struct {
	hub *Hub

	mu      sync.Mutex
	key     string
	gen     uint64
	sub     *Subscription
	status  types.Status
	ok      bool
	changed chan struct{}
	closed  bool
}

// Watch subscribes to key. The cached value, if any, is available from Latest
// as soon as Watch returns.
func (h *Hub) Watch(key string) *Watch {
	w := &Watch{
		hub:     h,
		changed: make(chan struct{}, 1),
	}
	w.SetKey(key)
	return w
}

// Latest returns the most recent value for the watched key.
func (w *Watch) Latest() (types.Status, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status, w.ok
}

// Key returns the watched key.
func (w *Watch) Key() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.key
}

// Changed is signalled after each delivery. Signals coalesce: a reader that
// falls behind sees one pending signal, not one per delivery.
func (w *Watch) Changed() <-chan struct{} {
	return w.changed
}

// SetKey moves the watch to a different key. It does nothing when key is
// already watched; otherwise the old subscription is dropped and deliveries
// still in flight for it are ignored.
func (w *Watch) SetKey(key string) {
	w.mu.Lock()
	if w.closed || (w.sub != nil && w.key == key) {
		w.mu.Unlock()
		return
	}
	w.gen++
	gen := w.gen
	old := w.sub
	w.sub = nil
	w.key = key
	w.status, w.ok = types.Status{}, false
	w.mu.Unlock()

	if old != nil {
		old.Close()
	}
	sub := w.hub.Subscribe(key, func(st types.Status, ok bool) {
		w.receive(gen, st, ok)
	})

	w.mu.Lock()
	if w.gen != gen || w.closed {
		w.mu.Unlock()
		sub.Close()
		return
	}
	w.sub = sub
	w.mu.Unlock()
}

// Close releases the underlying subscription.
func (w *Watch) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	sub := w.sub
	w.sub = nil
	w.mu.Unlock()

	if sub != nil {
		sub.Close()
	}
}

func (w *Watch) receive(gen uint64, st types.Status, ok bool) {
	w.mu.Lock()
	if w.gen != gen || w.closed {
		w.mu.Unlock()
		return
	}
	w.status, w.ok = st, ok
	w.mu.Unlock()

	select {
	case w.changed <- struct{}{}:
	default:
	}
}
