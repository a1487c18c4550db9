package sink_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/sink"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	Event types.StatusEvent
	Attrs map[string]string
}

type mockPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (m *mockPublisher) Publish(_ context.Context, payload []byte, attributes map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ev types.StatusEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return err
	}
	m.msgs = append(m.msgs, published{Event: ev, Attrs: attributes})
	return m.err
}

func (m *mockPublisher) Stop(context.Context) error { return nil }

func (m *mockPublisher) Messages() []published {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]published(nil), m.msgs...)
}

func TestStatusForwarder_ForwardsHubDeliveries(t *testing.T) {
	// Arrange
	now := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(now)
	pub := &mockPublisher{}
	fwd := sink.NewStatusForwarder(sink.ForwarderConfig{}, pub, clock, zerolog.Nop())

	querier := livestatus.QuerierFunc(func(_ context.Context, ids []int64, _ http.Header) (map[string]types.Status, error) {
		return map[string]types.Status{"15": {Ended: true, Viewers: 2}}, nil
	})
	hub, err := livestatus.NewHub(livestatus.NewHubConfigDefaults(), querier, clock, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(hub.Close)

	// Act
	detach := fwd.Attach(hub, []string{"15", "not-an-id"})
	hub.Poll(context.Background())
	detach()
	hub.Poll(context.Background())

	// Assert
	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, types.StatusEvent{EntityID: 15, Available: false, ObservedAt: now}, msgs[0].Event)
	assert.Equal(t, types.StatusEvent{EntityID: 15, Status: types.Status{Ended: true, Viewers: 2}, Available: true, ObservedAt: now}, msgs[1].Event)
	assert.Equal(t, map[string]string{"entity_id": "15", "ended": "true", "available": "true"}, msgs[1].Attrs)
	assert.Empty(t, hub.Keys())
}

func TestStatusForwarder_OnlyChanges(t *testing.T) {
	pub := &mockPublisher{}
	fwd := sink.NewStatusForwarder(sink.ForwarderConfig{OnlyChanges: true}, pub, clockwork.NewFakeClock(), zerolog.Nop())
	listener := fwd.Listener("3")

	listener(types.Status{Viewers: 1}, true)
	listener(types.Status{Viewers: 1}, true)
	listener(types.Status{Viewers: 2}, true)
	listener(types.Status{}, false)
	listener(types.Status{}, false)

	require.Len(t, pub.Messages(), 3)
}

func TestStatusForwarder_PublishErrorIsSwallowed(t *testing.T) {
	pub := &mockPublisher{err: errors.New("topic gone")}
	fwd := sink.NewStatusForwarder(sink.ForwarderConfig{}, pub, nil, zerolog.Nop())

	assert.NotPanics(t, func() {
		fwd.Listener("9")(types.Status{Viewers: 4}, true)
	})
	assert.Len(t, pub.Messages(), 1)
}
