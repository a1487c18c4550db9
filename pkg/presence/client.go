// Package presence drives the join, heartbeat and leave lifecycle for a
// consumer viewing a live entity.
package presence

import (
	"context"
	"net/http"
)

// Client issues presence calls for an entity. Calls are idempotent and a
// Session treats every failure as advisory.
type Client interface {
	Join(ctx context.Context, id int64, headers http.Header) error
	Heartbeat(ctx context.Context, id int64, headers http.Header) error
	Leave(ctx context.Context, id int64, headers http.Header) error
}
