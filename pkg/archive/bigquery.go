package archive

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/bigquery"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/rs/zerolog"
	"google.golang.org/api/option"
)

// BigQueryConfig names the observation table.
type BigQueryConfig struct {
	ProjectID       string `yaml:"project_id"`
	DatasetID       string `yaml:"dataset_id"`
	TableID         string `yaml:"table_id"`
	CredentialsFile string `yaml:"credentials_file"` // Optional: Path to a service account JSON file.
}

// NewProductionBigQueryClient creates a BigQuery client. It uses Application
// Default Credentials unless a credentials file is given.
func NewProductionBigQueryClient(ctx context.Context, cfg *BigQueryConfig, logger zerolog.Logger) (*bigquery.Client, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
		logger.Info().Str("credentials_file", cfg.CredentialsFile).Msg("Using specified credentials file for BigQuery client.")
	}
	client, err := bigquery.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("bigquery.NewClient: %w", err)
	}
	return client, nil
}

// BigQueryWriter streams observations into a BigQuery table.
type BigQueryWriter struct {
	inserter *bigquery.Inserter
	logger   zerolog.Logger
}

// NewBigQueryWriter connects to the observation table, creating it with a
// schema inferred from types.Observation when it does not exist.
func NewBigQueryWriter(ctx context.Context, client *bigquery.Client, cfg *BigQueryConfig, logger zerolog.Logger) (*BigQueryWriter, error) {
	if client == nil {
		return nil, errors.New("bigquery client cannot be nil")
	}
	if cfg == nil || cfg.DatasetID == "" || cfg.TableID == "" {
		return nil, errors.New("bigquery dataset and table are required")
	}
	logger = logger.With().
		Str("component", "BigQueryWriter").
		Str("dataset_id", cfg.DatasetID).
		Str("table_id", cfg.TableID).
		Logger()

	table := client.Dataset(cfg.DatasetID).Table(cfg.TableID)
	if _, err := table.Metadata(ctx); err != nil {
		if !strings.Contains(err.Error(), "notFound") {
			return nil, fmt.Errorf("failed to get BigQuery table metadata: %w", err)
		}
		logger.Warn().Msg("BigQuery table not found. Creating it with the observation schema.")
		schema, err := bigquery.InferSchema(types.Observation{})
		if err != nil {
			return nil, fmt.Errorf("failed to infer observation schema: %w", err)
		}
		meta := &bigquery.TableMetadata{
			Schema:           schema,
			TimePartitioning: &bigquery.TimePartitioning{Field: "observed_at"},
		}
		if err := table.Create(ctx, meta); err != nil {
			return nil, fmt.Errorf("failed to create BigQuery table %s.%s: %w", cfg.DatasetID, cfg.TableID, err)
		}
	}

	return &BigQueryWriter{
		inserter: table.Inserter(),
		logger:   logger,
	}, nil
}

// WriteBatch streams the batch, logging each rejected row.
func (w *BigQueryWriter) WriteBatch(ctx context.Context, batch []*types.Observation) error {
	if len(batch) == 0 {
		return nil
	}
	if err := w.inserter.Put(ctx, batch); err != nil {
		var multiErr bigquery.PutMultiError
		if errors.As(err, &multiErr) {
			for _, rowErr := range multiErr {
				w.logger.Error().Int("row_index", rowErr.RowIndex).Msgf("BigQuery insert error for row: %v", rowErr.Errors)
			}
		}
		return fmt.Errorf("bigquery Inserter.Put failed: %w", err)
	}
	return nil
}

// Close is a no-op; the client's lifecycle is managed by its creator.
func (w *BigQueryWriter) Close() error {
	return nil
}
