package livestatus

import (
	"sync"
	"sync/atomic"

	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// Subscription is one listener registered on a Hub key.
type Subscription struct {
	hub    *Hub
	key    string
	fn     Listener
	closed atomic.Bool

	// mu serializes callbacks for this subscription.
	mu      sync.Mutex
	lastSeq uint64
}

// Key returns the key the subscription listens on.
func (s *Subscription) Key() string {
	return s.key
}

// Close unsubscribes. It is safe to call from inside the listener.
func (s *Subscription) Close() {
	s.hub.Unsubscribe(s)
}

// deliver invokes the listener unless the subscription is closed or a newer
// delivery already reached it. seq is assigned under the hub lock, so it orders
// deliveries the same way the hub state changed.
func (s *Subscription) deliver(seq uint64, st types.Status, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() || seq <= s.lastSeq {
		return
	}
	s.lastSeq = seq
	s.fn(st, ok)
}
