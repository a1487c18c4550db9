// Package archive records every delivered status as an Observation and writes
// them in batches to BigQuery and/or Cloud Storage.
package archive

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-livestatus/pkg/types"
)

// BatchWriter persists a batch of observations.
type BatchWriter interface {
	WriteBatch(ctx context.Context, batch []*types.Observation) error
	// Close handles any necessary cleanup of the writer's resources.
	Close() error
}

// MultiWriter writes every batch to each of its writers.
type MultiWriter []BatchWriter

// WriteBatch writes to all writers and joins their errors.
func (m MultiWriter) WriteBatch(ctx context.Context, batch []*types.Observation) error {
	var errs []error
	for _, w := range m {
		if err := w.WriteBatch(ctx, batch); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all writers and joins their errors.
func (m MultiWriter) Close() error {
	var errs []error
	for _, w := range m {
		if err := w.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
