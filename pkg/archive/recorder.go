package archive

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/metrics"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// RecorderConfig holds configuration for the Recorder.
type RecorderConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"` // How often to flush a partial batch.
	WriteTimeout  time.Duration `yaml:"write_timeout"`  // The timeout for a single flush.
	BufferSize    int           `yaml:"buffer_size"`    // Observations queued before Record drops.
}

// NewRecorderConfigDefaults returns the default batching schedule.
func NewRecorderConfigDefaults() *RecorderConfig {
	return &RecorderConfig{
		BatchSize:     500,
		FlushInterval: time.Minute,
		WriteTimeout:  30 * time.Second,
		BufferSize:    1000,
	}
}

// Recorder batches observations and hands full or aged batches to a BatchWriter.
// Record never blocks: hub listeners call it and an archive outage must not
// stall status delivery.
type Recorder struct {
	cfg    RecorderConfig
	writer BatchWriter
	clock  clockwork.Clock
	logger zerolog.Logger

	mu      sync.RWMutex
	stopped bool
	exited  bool // worker returned because its context ended
	input   chan *types.Observation
	wg      sync.WaitGroup
}

// NewRecorder creates a Recorder. A nil clock means the real clock.
func NewRecorder(cfg *RecorderConfig, writer BatchWriter, clock clockwork.Clock, logger zerolog.Logger) (*Recorder, error) {
	if cfg == nil {
		return nil, errors.New("recorder config cannot be nil")
	}
	if writer == nil {
		return nil, errors.New("batch writer cannot be nil")
	}
	if cfg.BatchSize <= 0 || cfg.FlushInterval <= 0 {
		return nil, errors.New("recorder batch size and flush interval must be positive")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := *cfg
	if c.BufferSize <= 0 {
		c.BufferSize = c.BatchSize * 2
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 30 * time.Second
	}
	return &Recorder{
		cfg:    c,
		writer: writer,
		clock:  clock,
		logger: logger.With().Str("component", "ArchiveRecorder").Logger(),
		input:  make(chan *types.Observation, c.BufferSize),
	}, nil
}

// Start begins the batching worker. Cancelling ctx makes the worker write what
// is queued and exit; Record refuses from then on. Stop is the normal way to
// end a recorder.
func (r *Recorder) Start(ctx context.Context) {
	r.logger.Info().
		Int("batch_size", r.cfg.BatchSize).
		Dur("flush_interval", r.cfg.FlushInterval).
		Msg("Starting archive recorder...")
	ticker := r.clock.NewTicker(r.cfg.FlushInterval)
	r.wg.Add(1)
	go r.worker(ctx, ticker)
}

// Record queues obs. It reports false, and counts a drop, when the recorder is
// stopped or its buffer is full.
func (r *Recorder) Record(obs *types.Observation) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.stopped || r.exited {
		metrics.ArchiveObservationsDropped.Inc()
		return false
	}
	select {
	case r.input <- obs:
		return true
	default:
		metrics.ArchiveObservationsDropped.Inc()
		r.logger.Warn().Int64("entity_id", obs.EntityID).Msg("Archive buffer full, dropping observation.")
		return false
	}
}

// Listener returns a hub listener that records every delivery for key. Keys
// that are not entity ids are ignored.
func (r *Recorder) Listener(key string) livestatus.Listener {
	id, valid := types.ParseEntityID(key)
	return func(st types.Status, ok bool) {
		if !valid {
			return
		}
		r.Record(&types.Observation{
			EntityID:   id,
			Ended:      st.Ended,
			Viewers:    st.Viewers,
			Available:  ok,
			ObservedAt: r.clock.Now().UTC(),
		})
	}
}

// Attach subscribes the recorder to every key on hub and returns a function
// that detaches it again.
func (r *Recorder) Attach(hub *livestatus.Hub, keys []string) func() {
	subs := make([]*livestatus.Subscription, 0, len(keys))
	for _, key := range keys {
		subs = append(subs, hub.Subscribe(key, r.Listener(key)))
	}
	return func() {
		for _, sub := range subs {
			sub.Close()
		}
	}
}

// Stop rejects further observations, flushes what is queued and closes the
// writer, respecting the context's timeout.
func (r *Recorder) Stop(ctx context.Context) error {
	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil
	}
	r.stopped = true
	close(r.input)
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		r.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for archive recorder to stop.")
		return ctx.Err()
	}

	if err := r.writer.Close(); err != nil {
		r.logger.Error().Err(err).Msg("Error closing archive writer.")
	}
	r.logger.Info().Msg("Archive recorder stopped.")
	return nil
}

func (r *Recorder) worker(ctx context.Context, ticker clockwork.Ticker) {
	defer r.wg.Done()
	defer ticker.Stop()
	batch := make([]*types.Observation, 0, r.cfg.BatchSize)

	for {
		select {
		case <-ctx.Done():
			r.drain(batch)
			return

		case obs, ok := <-r.input:
			if !ok {
				r.flush(context.Background(), batch)
				return
			}
			batch = append(batch, obs)
			if len(batch) >= r.cfg.BatchSize {
				r.flush(ctx, batch)
				batch = make([]*types.Observation, 0, r.cfg.BatchSize)
				ticker.Reset(r.cfg.FlushInterval)
			}

		case <-ticker.Chan():
			if len(batch) > 0 {
				r.flush(ctx, batch)
				batch = make([]*types.Observation, 0, r.cfg.BatchSize)
			}
		}
	}
}

// drain takes over everything Record already accepted and writes it out.
// Setting exited under the write lock means no Record is mid-send afterwards.
func (r *Recorder) drain(batch []*types.Observation) {
	r.mu.Lock()
	r.exited = true
	r.mu.Unlock()

	for {
		select {
		case obs, ok := <-r.input:
			if !ok {
				r.flushAll(batch)
				return
			}
			batch = append(batch, obs)
		default:
			r.flushAll(batch)
			return
		}
	}
}

func (r *Recorder) flushAll(batch []*types.Observation) {
	for chunk := range slices.Chunk(batch, r.cfg.BatchSize) {
		r.flush(context.Background(), chunk)
	}
}

func (r *Recorder) flush(ctx context.Context, batch []*types.Observation) {
	if len(batch) == 0 {
		return
	}
	writeCtx, cancel := context.WithTimeout(ctx, r.cfg.WriteTimeout)
	defer cancel()

	if err := r.writer.WriteBatch(writeCtx, batch); err != nil {
		metrics.ArchiveFlushesTotal.WithLabelValues("error").Inc()
		r.logger.Error().Err(err).Int("batch_size", len(batch)).Msg("Failed to write archive batch.")
		return
	}
	metrics.ArchiveFlushesTotal.WithLabelValues("success").Inc()
	r.logger.Debug().Int("batch_size", len(batch)).Msg("Archive batch written.")
}
