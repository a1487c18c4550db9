package livestatus

import (
	"context"
	"net/http"

	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// StatusQuerier is the network collaborator the poller batches queries against.
// Implementations receive at most ChunkSize ids per call. The returned map is
// keyed by the decimal id; ids missing from it mean "no data", not an error.
type StatusQuerier interface {
	QueryStatus(ctx context.Context, ids []int64, headers http.Header) (map[string]types.Status, error)
}

// QuerierFunc adapts a plain function to the StatusQuerier interface.
type QuerierFunc func(ctx context.Context, ids []int64, headers http.Header) (map[string]types.Status, error)

// QueryStatus calls f.
func (f QuerierFunc) QueryStatus(ctx context.Context, ids []int64, headers http.Header) (map[string]types.Status, error) {
	return f(ctx, ids, headers)
}
