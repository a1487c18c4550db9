package sink

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ForwarderConfig controls which deliveries become events.
type ForwarderConfig struct {
	// OnlyChanges drops a delivery equal to the last one forwarded for its key.
	OnlyChanges bool `yaml:"only_changes"`
	// PublishTimeout bounds the call to Publish.
	PublishTimeout time.Duration `yaml:"publish_timeout"`
}

type lastValue struct {
	st types.Status
	ok bool
}

// StatusForwarder turns hub deliveries into StatusEvent messages.
type StatusForwarder struct {
	cfg       ForwarderConfig
	publisher Publisher
	clock     clockwork.Clock
	logger    zerolog.Logger

	mu   sync.Mutex
	last map[string]lastValue
}

// NewStatusForwarder creates a forwarder. A nil clock means the real clock.
func NewStatusForwarder(cfg ForwarderConfig, publisher Publisher, clock clockwork.Clock, logger zerolog.Logger) *StatusForwarder {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = 5 * time.Second
	}
	return &StatusForwarder{
		cfg:       cfg,
		publisher: publisher,
		clock:     clock,
		logger:    logger.With().Str("component", "StatusForwarder").Logger(),
		last:      make(map[string]lastValue),
	}
}

// Listener returns a hub listener that forwards deliveries for key. Keys that
// are not entity ids are ignored.
func (f *StatusForwarder) Listener(key string) livestatus.Listener {
	id, valid := types.ParseEntityID(key)
	return func(st types.Status, ok bool) {
		if !valid || !f.shouldForward(key, st, ok) {
			return
		}
		f.forward(id, st, ok)
	}
}

// Attach subscribes the forwarder to every key on hub and returns a function
// that detaches it again.
func (f *StatusForwarder) Attach(hub *livestatus.Hub, keys []string) func() {
	subs := make([]*livestatus.Subscription, 0, len(keys))
	for _, key := range keys {
		subs = append(subs, hub.Subscribe(key, f.Listener(key)))
	}
	return func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
}

func (f *StatusForwarder) shouldForward(key string, st types.Status, ok bool) bool {
	if !f.cfg.OnlyChanges {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	next := lastValue{st: st, ok: ok}
	if prev, seen := f.last[key]; seen && prev == next {
		return false
	}
	f.last[key] = next
	return true
}

func (f *StatusForwarder) forward(id int64, st types.Status, ok bool) {
	event := types.StatusEvent{
		EntityID:   id,
		Status:     st,
		Available:  ok,
		ObservedAt: f.clock.Now().UTC(),
	}
	payload, err := json.Marshal(event)
	if err != nil {
		f.logger.Error().Err(err).Int64("entity_id", id).Msg("Failed to marshal status event.")
		return
	}
	attrs := map[string]string{
		"entity_id": types.EntityKey(id),
		"ended":     strconv.FormatBool(st.Ended),
		"available": strconv.FormatBool(ok),
	}

	ctx, cancel := context.WithTimeout(context.Background(), f.cfg.PublishTimeout)
	defer cancel()
	if err := f.publisher.Publish(ctx, payload, attrs); err != nil {
		f.logger.Warn().Err(err).Int64("entity_id", id).Msg("Failed to forward status event.")
	}
}
