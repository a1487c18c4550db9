package presence_test

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"sync"
)

type recordedCall struct {
	Kind    string
	ID      int64
	Headers http.Header
}

// fakeClient records presence calls. A non-nil joinGate blocks Join until it is closed.
type fakeClient struct {
	mu       sync.Mutex
	calls    []recordedCall
	failWith error

	joinStarted chan int64
	joinGate    chan struct{}
	leaveGate   chan struct{}
}

func (c *fakeClient) record(kind string, id int64, headers http.Header) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, recordedCall{Kind: kind, ID: id, Headers: headers})
	return c.failWith
}

func (c *fakeClient) Join(ctx context.Context, id int64, headers http.Header) error {
	if c.joinStarted != nil {
		c.joinStarted <- id
	}
	if c.joinGate != nil {
		select {
		case <-c.joinGate:
		case <-ctx.Done():
		}
	}
	return c.record("join", id, headers)
}

func (c *fakeClient) Heartbeat(_ context.Context, id int64, headers http.Header) error {
	return c.record("heartbeat", id, headers)
}

func (c *fakeClient) Leave(ctx context.Context, id int64, headers http.Header) error {
	if c.leaveGate != nil {
		select {
		case <-c.leaveGate:
		case <-ctx.Done():
		}
	}
	return c.record("leave", id, headers)
}

func (c *fakeClient) Calls() []recordedCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.calls)
}

// Sequence returns the calls as "kind:id" strings, excluding heartbeats.
func (c *fakeClient) Sequence() []string {
	var out []string
	for _, call := range c.Calls() {
		if call.Kind == "heartbeat" {
			continue
		}
		out = append(out, call.Kind+":"+strconv.FormatInt(call.ID, 10))
	}
	return out
}

func (c *fakeClient) Count(kind string, id int64) int {
	n := 0
	for _, call := range c.Calls() {
		if call.Kind == kind && call.ID == id {
			n++
		}
	}
	return n
}
