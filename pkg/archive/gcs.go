package archive

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
)

// GCSConfig locates the archive objects.
type GCSConfig struct {
	BucketName   string `yaml:"bucket"`
	ObjectPrefix string `yaml:"object_prefix"`
}

// GCSWriter writes each batch as gzip-compressed JSON lines, one object per
// UTC day present in the batch: <prefix>/<yyyy/mm/dd>/<uuid>.jsonl.gz.
type GCSWriter struct {
	store  ObjectStore
	cfg    GCSConfig
	logger zerolog.Logger
	wg     sync.WaitGroup
}

// NewGCSWriter creates a writer for cfg.BucketName.
func NewGCSWriter(store ObjectStore, cfg GCSConfig, logger zerolog.Logger) (*GCSWriter, error) {
	if store == nil {
		return nil, errors.New("object store cannot be nil")
	}
	if cfg.BucketName == "" {
		return nil, errors.New("GCS bucket name is required")
	}
	return &GCSWriter{
		store:  store,
		cfg:    cfg,
		logger: logger.With().Str("component", "GCSWriter").Logger(),
	}, nil
}

// WriteBatch groups the batch by day and uploads the groups in parallel.
func (w *GCSWriter) WriteBatch(ctx context.Context, batch []*types.Observation) error {
	groups := make(map[string][]*types.Observation)
	for _, obs := range batch {
		if obs == nil {
			continue
		}
		key := obs.BatchKey()
		groups[key] = append(groups[key], obs)
	}
	if len(groups) == 0 {
		return nil
	}

	var mu sync.Mutex
	var errs []error
	var uploads sync.WaitGroup
	for key, group := range groups {
		uploads.Add(1)
		w.wg.Add(1)
		go func() {
			defer uploads.Done()
			defer w.wg.Done()
			if err := w.upload(ctx, key, group); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	uploads.Wait()
	return errors.Join(errs...)
}

func (w *GCSWriter) upload(ctx context.Context, batchKey string, group []*types.Observation) error {
	objectName := path.Join(w.cfg.ObjectPrefix, batchKey, uuid.NewString()+".jsonl.gz")
	writer := w.store.Bucket(w.cfg.BucketName).Object(objectName).NewWriter(ctx)

	pr, pw := io.Pipe()
	defer func() { _ = pr.Close() }()
	go func() {
		gz := gzip.NewWriter(pw)
		enc := json.NewEncoder(gz)
		var err error
		for _, obs := range group {
			if err = enc.Encode(obs); err != nil {
				err = fmt.Errorf("json encoding failed for %s: %w", objectName, err)
				break
			}
		}
		if closeErr := gz.Close(); err == nil {
			err = closeErr
		}
		_ = pw.CloseWithError(err)
	}()

	written, copyErr := io.Copy(writer, pr)
	closeErr := writer.Close()
	if copyErr != nil {
		return fmt.Errorf("failed to stream GCS object %s: %w", objectName, copyErr)
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close GCS object %s: %w", objectName, closeErr)
	}
	w.logger.Debug().Str("object_name", objectName).Int("records", len(group)).Int64("bytes", written).Msg("Uploaded archive object.")
	return nil
}

// Close waits for in-flight uploads.
func (w *GCSWriter) Close() error {
	w.wg.Wait()
	return nil
}
