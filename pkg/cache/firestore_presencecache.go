package cache

import (
	"context"
	"errors"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreConfig names the collection a Firestore-backed component works on.
type FirestoreConfig struct {
	ProjectID      string `yaml:"project_id"`
	CollectionName string `yaml:"collection"`
}

// FirestorePresenceCache is an implementation of PresenceCache using Firestore.
// It suits low-volume deployments; records do not expire on their own unless the
// collection has a TTL policy configured.
type FirestorePresenceCache[K comparable, V any] struct {
	client     *firestore.Client
	collection string
}

var _ PresenceCache[string, int] = (*FirestorePresenceCache[string, int])(nil)

// NewFirestorePresenceCache creates a new FirestorePresenceCache.
func NewFirestorePresenceCache[K comparable, V any](
	cfg *FirestoreConfig,
	client *firestore.Client,
) (*FirestorePresenceCache[K, V], error) {
	if client == nil {
		return nil, errors.New("firestore client cannot be nil")
	}
	if cfg.CollectionName == "" {
		return nil, errors.New("firestore collection name is required")
	}
	return &FirestorePresenceCache[K, V]{
		client:     client,
		collection: cfg.CollectionName,
	}, nil
}

// Set creates or overwrites a document with the presence information.
func (c *FirestorePresenceCache[K, V]) Set(ctx context.Context, key K, value V) error {
	docID := fmt.Sprintf("%v", key)
	if _, err := c.client.Collection(c.collection).Doc(docID).Set(ctx, value); err != nil {
		return fmt.Errorf("failed to set presence in firestore for key %s: %w", docID, err)
	}
	return nil
}

// Fetch retrieves a document and maps it to the value type.
func (c *FirestorePresenceCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	docID := fmt.Sprintf("%v", key)
	docSnap, err := c.client.Collection(c.collection).Doc(docID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return zero, fmt.Errorf("presence key '%s': %w", docID, ErrNotFound)
		}
		return zero, fmt.Errorf("firestore get failed for key %s: %w", docID, err)
	}
	var value V
	if err := docSnap.DataTo(&value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal presence data for key %s: %w", docID, err)
	}
	return value, nil
}

// Delete removes the document from Firestore.
func (c *FirestorePresenceCache[K, V]) Delete(ctx context.Context, key K) error {
	docID := fmt.Sprintf("%v", key)
	if _, err := c.client.Collection(c.collection).Doc(docID).Delete(ctx); err != nil {
		if status.Code(err) == codes.NotFound {
			return nil
		}
		return fmt.Errorf("firestore delete failed for key %s: %w", docID, err)
	}
	return nil
}

// Close is a no-op as the Firestore client's lifecycle is managed externally.
func (c *FirestorePresenceCache[K, V]) Close() error {
	return nil
}
