package livestatus_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHub_Validation(t *testing.T) {
	_, err := livestatus.NewHub(nil, &fakeQuerier{}, nil, zerolog.Nop())
	require.Error(t, err)

	_, err = livestatus.NewHub(livestatus.NewHubConfigDefaults(), nil, nil, zerolog.Nop())
	require.Error(t, err)
}

func TestHub_SubscribeDeliversNoDataBeforeAnyQuery(t *testing.T) {
	q := &fakeQuerier{}
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	var log deliveryLog
	sub := hub.Subscribe("42", log.Listener())
	t.Cleanup(sub.Close)

	assert.Equal(t, []delivered{noData()}, log.All(), "first subscribe must deliver 'no data' synchronously")
	assert.Empty(t, q.Calls(), "no network call happens on subscribe")
}

func TestHub_SubscribeThenPollScenario(t *testing.T) {
	// Arrange
	q := &fakeQuerier{}
	q.SetRespond(staticStatus(map[string]types.Status{"42": {Ended: false, Viewers: 3}}))
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	var log deliveryLog
	hub.Subscribe("42", log.Listener())

	// Act
	hub.Poll(context.Background())

	// Assert
	assert.Equal(t, []delivered{noData(), data(false, 3)}, log.All())
	cached, ok := hub.Lookup("42")
	require.True(t, ok)
	assert.Equal(t, types.Status{Ended: false, Viewers: 3}, cached)
}

func TestHub_DuplicateSubscriptionsShareOneQueryEntry(t *testing.T) {
	q := &fakeQuerier{}
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	logs := make([]*deliveryLog, 3)
	for i := range logs {
		logs[i] = &deliveryLog{}
		hub.Subscribe("42", logs[i].Listener())
	}

	assert.Equal(t, []string{"42"}, hub.Keys())
	assert.Equal(t, 3, hub.ListenerCount("42"))

	hub.Poll(context.Background())

	require.Len(t, q.Calls(), 1)
	assert.Equal(t, []int64{42}, q.Calls()[0])
	for _, l := range logs {
		assert.Len(t, l.All(), 2, "every listener gets the initial and the polled delivery")
	}
}

func TestHub_PollChunksSequentially(t *testing.T) {
	q := &fakeQuerier{}
	cfg := livestatus.NewHubConfigDefaults()
	cfg.ChunkSize = 50
	hub, _ := newTestHub(t, cfg, q)

	for id := int64(1); id <= 130; id++ {
		hub.Subscribe(types.EntityKey(id), func(types.Status, bool) {})
	}

	hub.Poll(context.Background())

	calls := q.Calls()
	require.Len(t, calls, 3)
	assert.Len(t, calls[0], 50)
	assert.Len(t, calls[1], 50)
	assert.Len(t, calls[2], 30)
	assert.Equal(t, int64(1), calls[0][0])
	assert.Equal(t, int64(130), calls[2][29])
	assert.Equal(t, int32(1), q.maxSeen.Load(), "chunks must never overlap")
}

func TestHub_UnsubscribeLastListenerKeepsCache(t *testing.T) {
	q := &fakeQuerier{}
	q.SetRespond(staticStatus(map[string]types.Status{"42": {Viewers: 9}}))
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	sub := hub.Subscribe("42", func(types.Status, bool) {})
	hub.Poll(context.Background())
	require.Len(t, q.Calls(), 1)

	// Act
	sub.Close()
	sub.Close()
	hub.Poll(context.Background())

	// Assert: no longer polled, but the value survives for a later subscriber.
	assert.Empty(t, hub.Keys())
	assert.Len(t, q.Calls(), 1, "a key without listeners must not be queried")

	var late deliveryLog
	hub.Subscribe("42", late.Listener())
	assert.Equal(t, []delivered{data(false, 9)}, late.All())
}

func TestHub_FailedChunkLeavesCacheAndSkipsFanOut(t *testing.T) {
	// Arrange: chunks of two, so ids 1,2 and 3,4 are queried separately.
	q := &fakeQuerier{}
	cfg := livestatus.NewHubConfigDefaults()
	cfg.ChunkSize = 2
	hub, _ := newTestHub(t, cfg, q)

	logs := map[string]*deliveryLog{}
	for _, key := range []string{"1", "2", "3", "4"} {
		logs[key] = &deliveryLog{}
		hub.Subscribe(key, logs[key].Listener())
	}
	q.SetRespond(staticStatus(map[string]types.Status{"1": {Viewers: 1}, "3": {Viewers: 3}}))
	hub.Poll(context.Background())

	// Act: the first chunk now fails, the second succeeds with fresh values.
	q.SetRespond(func(ids []int64) (map[string]types.Status, error) {
		if ids[0] == 1 {
			return nil, errors.New("status endpoint unavailable")
		}
		return map[string]types.Status{"3": {Viewers: 30}, "4": {Ended: true}}, nil
	})
	hub.Poll(context.Background())

	// Assert
	cached, ok := hub.Lookup("1")
	require.True(t, ok)
	assert.Equal(t, types.Status{Viewers: 1}, cached, "failed chunk must not touch the cache")
	assert.Equal(t, []delivered{noData(), data(false, 1)}, logs["1"].All(), "no fan-out for a failed chunk")
	assert.Equal(t, []delivered{noData(), noData()}, logs["2"].All())

	assert.Equal(t, []delivered{noData(), data(false, 3), data(false, 30)}, logs["3"].All())
	assert.Equal(t, []delivered{noData(), noData(), data(true, 0)}, logs["4"].All())
	assert.Len(t, q.Calls(), 4)
}

func TestHub_OmittedIDDeliversNoDataButKeepsCache(t *testing.T) {
	q := &fakeQuerier{}
	q.SetRespond(staticStatus(map[string]types.Status{"7": {Viewers: 2}}))
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	var log deliveryLog
	hub.Subscribe("7", log.Listener())
	hub.Poll(context.Background())

	q.SetRespond(staticStatus(nil))
	hub.Poll(context.Background())

	assert.Equal(t, []delivered{noData(), data(false, 2), noData()}, log.All())
	cached, ok := hub.Lookup("7")
	require.True(t, ok)
	assert.Equal(t, types.Status{Viewers: 2}, cached)

	var late deliveryLog
	hub.Subscribe("7", late.Listener())
	assert.Equal(t, []delivered{data(false, 2)}, late.All(), "late subscriber still sees the last known value")
}

func TestHub_InvalidKeysNeverReachTheNetwork(t *testing.T) {
	q := &fakeQuerier{}
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	for _, key := range []string{"abc", "0", "-3", "042", ""} {
		hub.Subscribe(key, func(types.Status, bool) {})
	}
	hub.Poll(context.Background())
	assert.Empty(t, q.Calls(), "a tick with no valid ids performs no query")

	hub.Subscribe("5", func(types.Status, bool) {})
	hub.Poll(context.Background())
	require.Len(t, q.Calls(), 1)
	assert.Equal(t, []int64{5}, q.Calls()[0])
}

func TestHub_HeadersFollowSetHeaders(t *testing.T) {
	q := &fakeQuerier{}
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)
	hub.Subscribe("1", func(types.Status, bool) {})

	hub.SetHeaders(http.Header{"Authorization": {"Bearer one"}})
	hub.Poll(context.Background())

	headers := http.Header{"Authorization": {"Bearer two"}}
	hub.SetHeaders(headers)
	headers.Set("Authorization", "mutated after set")
	hub.Poll(context.Background())

	got := q.Headers()
	require.Len(t, got, 2)
	assert.Equal(t, "Bearer one", got[0].Get("Authorization"))
	assert.Equal(t, "Bearer two", got[1].Get("Authorization"), "hub keeps its own copy of the headers")
}

func TestHub_ListenerMayUnsubscribeDuringDelivery(t *testing.T) {
	q := &fakeQuerier{}
	q.SetRespond(staticStatus(map[string]types.Status{"8": {Viewers: 1}}))
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)

	var selfCalls int
	var self *livestatus.Subscription
	self = hub.Subscribe("8", func(st types.Status, ok bool) {
		selfCalls++
		if ok {
			self.Close()
		}
	})
	var other deliveryLog
	hub.Subscribe("8", other.Listener())

	hub.Poll(context.Background())
	hub.Poll(context.Background())

	assert.Equal(t, 2, selfCalls, "initial delivery plus the one during which it unsubscribed")
	assert.Equal(t, []delivered{noData(), data(false, 1), data(false, 1)}, other.All())
	assert.Equal(t, 1, hub.ListenerCount("8"))
}

func TestHub_SubscribeAfterClose(t *testing.T) {
	q := &fakeQuerier{}
	q.SetRespond(staticStatus(map[string]types.Status{"3": {Viewers: 4}}))
	hub, _ := newTestHub(t, livestatus.NewHubConfigDefaults(), q)
	hub.Subscribe("3", func(types.Status, bool) {})
	hub.Poll(context.Background())

	hub.Close()

	var log deliveryLog
	hub.Subscribe("3", log.Listener())
	assert.Equal(t, []delivered{data(false, 4)}, log.All())
	assert.Equal(t, 1, hub.ListenerCount("3"), "only the subscription made before close is registered")
}
