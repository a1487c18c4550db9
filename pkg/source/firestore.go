package source

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
)

// FirestoreSourceConfig names the collection holding one document per entity,
// keyed by the entity id.
type FirestoreSourceConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection"`
}

type statusDoc struct {
	Ended   bool `firestore:"ended"`
	Viewers int  `firestore:"viewers"`
}

// FirestoreStatusSource reads status documents with one GetAll per query.
// Suited to low volume deployments; Redis is the better fit under load.
type FirestoreStatusSource struct {
	client     *firestore.Client
	collection string
	logger     zerolog.Logger
}

// NewFirestoreStatusSource creates a source over an injected client.
func NewFirestoreStatusSource(cfg *FirestoreSourceConfig, client *firestore.Client, logger zerolog.Logger) (*FirestoreStatusSource, error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg == nil || cfg.CollectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}
	logger.Info().Str("project_id", cfg.ProjectID).Str("collection", cfg.CollectionName).Msg("FirestoreStatusSource initialized.")
	return &FirestoreStatusSource{
		client:     client,
		collection: cfg.CollectionName,
		logger:     logger.With().Str("component", "FirestoreStatusSource").Logger(),
	}, nil
}

// QueryStatus fetches every id's document. Documents that do not exist are
// left out of the result.
func (s *FirestoreStatusSource) QueryStatus(ctx context.Context, ids []int64, _ http.Header) (map[string]types.Status, error) {
	out := make(map[string]types.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	refs := make([]*firestore.DocumentRef, len(ids))
	for i, id := range ids {
		refs[i] = s.client.Collection(s.collection).Doc(types.EntityKey(id))
	}

	snaps, err := s.client.GetAll(ctx, refs)
	if err != nil {
		return nil, fmt.Errorf("firestore getall: %w", err)
	}
	for i, snap := range snaps {
		if !snap.Exists() {
			continue
		}
		var doc statusDoc
		if err := snap.DataTo(&doc); err != nil {
			s.logger.Warn().Err(err).Str("doc_id", refs[i].ID).Msg("Skipping unmappable status document.")
			continue
		}
		out[refs[i].ID] = types.Status{Ended: doc.Ended, Viewers: doc.Viewers}
	}
	return out, nil
}

// WriteStatus stores the status document for id.
func (s *FirestoreStatusSource) WriteStatus(ctx context.Context, id int64, st types.Status) error {
	doc := statusDoc{Ended: st.Ended, Viewers: st.Viewers}
	if _, err := s.client.Collection(s.collection).Doc(types.EntityKey(id)).Set(ctx, doc); err != nil {
		return fmt.Errorf("firestore set for %d: %w", id, err)
	}
	return nil
}
