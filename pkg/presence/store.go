package presence

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// ViewerHeader carries the viewer identity for store-backed presence.
const ViewerHeader = "X-Viewer-Id"

// ViewerRecord is the stored presence of one viewer on one entity.
type ViewerRecord struct {
	EntityID int64     `json:"entity_id" firestore:"entity_id"`
	ViewerID string    `json:"viewer_id" firestore:"viewer_id"`
	JoinedAt time.Time `json:"joined_at" firestore:"joined_at"`
	LastSeen time.Time `json:"last_seen" firestore:"last_seen"`
}

// StoreClient is a Client that records presence directly in a PresenceCache
// instead of calling a remote service.
type StoreClient struct {
	store         cache.PresenceCache[string, ViewerRecord]
	clock         clockwork.Clock
	logger        zerolog.Logger
	defaultViewer string
}

var _ Client = (*StoreClient)(nil)

// NewStoreClient creates a StoreClient. Calls without a viewer header are
// attributed to a viewer id generated once per client.
func NewStoreClient(store cache.PresenceCache[string, ViewerRecord], clock clockwork.Clock, logger zerolog.Logger) *StoreClient {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &StoreClient{
		store:         store,
		clock:         clock,
		logger:        logger.With().Str("component", "PresenceStoreClient").Logger(),
		defaultViewer: uuid.NewString(),
	}
}

// ViewerKey is the store key for a viewer on an entity.
func ViewerKey(id int64, viewer string) string {
	return strconv.FormatInt(id, 10) + ":" + viewer
}

// Join writes a fresh viewer record.
func (c *StoreClient) Join(ctx context.Context, id int64, headers http.Header) error {
	viewer := c.viewer(headers)
	now := c.clock.Now().UTC()
	rec := ViewerRecord{EntityID: id, ViewerID: viewer, JoinedAt: now, LastSeen: now}
	if err := c.store.Set(ctx, ViewerKey(id, viewer), rec); err != nil {
		return fmt.Errorf("join entity %d: %w", id, err)
	}
	return nil
}

// Heartbeat refreshes LastSeen, recreating the record if it expired.
func (c *StoreClient) Heartbeat(ctx context.Context, id int64, headers http.Header) error {
	viewer := c.viewer(headers)
	key := ViewerKey(id, viewer)
	now := c.clock.Now().UTC()

	rec, err := c.store.Fetch(ctx, key)
	switch {
	case errors.Is(err, cache.ErrNotFound):
		c.logger.Debug().Str("key", key).Msg("Heartbeat for missing record, recreating.")
		rec = ViewerRecord{EntityID: id, ViewerID: viewer, JoinedAt: now}
	case err != nil:
		return fmt.Errorf("heartbeat entity %d: %w", id, err)
	}
	rec.LastSeen = now
	if err := c.store.Set(ctx, key, rec); err != nil {
		return fmt.Errorf("heartbeat entity %d: %w", id, err)
	}
	return nil
}

// Leave deletes the viewer record.
func (c *StoreClient) Leave(ctx context.Context, id int64, headers http.Header) error {
	if err := c.store.Delete(ctx, ViewerKey(id, c.viewer(headers))); err != nil {
		return fmt.Errorf("leave entity %d: %w", id, err)
	}
	return nil
}

func (c *StoreClient) viewer(headers http.Header) string {
	if v := headers.Get(ViewerHeader); v != "" {
		return v
	}
	return c.defaultViewer
}
