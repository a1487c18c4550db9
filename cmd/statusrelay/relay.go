package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/illmade-knight/go-livestatus/pkg/archive"
	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/lookup"
	"github.com/illmade-knight/go-livestatus/pkg/microservice"
	"github.com/illmade-knight/go-livestatus/pkg/presence"
	"github.com/illmade-knight/go-livestatus/pkg/sink"
	"github.com/illmade-knight/go-livestatus/pkg/source"
	"github.com/illmade-knight/go-livestatus/pkg/statusapi"
	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Relay keeps a fixed set of entities subscribed on a hub and forwards what it
// sees to Pub/Sub and the archive, while staying present on configured entities.
type Relay struct {
	cfg    *Config
	logger zerolog.Logger
	clock  clockwork.Clock

	hub       *livestatus.Hub
	server    *microservice.Server
	forwarder *sink.StatusForwarder
	publisher sink.Publisher
	recorder  *archive.Recorder
	sessions  []*presence.Session
	headers   http.Header

	redis     *redis.Client
	firestore *firestore.Client
	detach    []func()
	closers   []func() error
}

// NewRelay builds every component named in cfg. Nothing runs until Start.
func NewRelay(ctx context.Context, cfg *Config, logger zerolog.Logger) (_ *Relay, err error) {
	r := &Relay{
		cfg:    cfg,
		logger: logger.With().Str("component", "StatusRelay").Logger(),
		clock:  clockwork.NewRealClock(),
	}
	defer func() {
		if err != nil {
			for _, s := range r.sessions {
				_ = s.Close(context.Background())
			}
			_ = r.closeClients()
		}
	}()

	querier, err := r.newQuerier(ctx)
	if err != nil {
		return nil, err
	}
	r.hub, err = livestatus.NewHub(&cfg.Hub, querier, r.clock, logger)
	if err != nil {
		return nil, err
	}

	if cfg.PubSub != nil {
		client, err := pubsub.NewClient(ctx, cfg.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("pubsub client: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		publisher, err := sink.NewGooglePublisher(ctx, &cfg.PubSub.Publisher, client, logger)
		if err != nil {
			return nil, err
		}
		r.publisher = publisher
		r.forwarder = sink.NewStatusForwarder(cfg.PubSub.Forwarder, publisher, r.clock, logger)
	}

	if cfg.Archive != nil {
		writer, err := r.newArchiveWriter(ctx)
		if err != nil {
			return nil, err
		}
		r.recorder, err = archive.NewRecorder(&cfg.Archive.Recorder, writer, r.clock, logger)
		if err != nil {
			return nil, err
		}
	}

	if cfg.Presence != nil {
		client, err := r.newPresenceClient(ctx)
		if err != nil {
			return nil, err
		}
		for range cfg.Presence.EntityIDs {
			s, err := presence.NewSession(&cfg.Presence.Session, client, r.clock, logger)
			if err != nil {
				return nil, err
			}
			r.sessions = append(r.sessions, s)
		}
		r.headers = http.Header{}
		if cfg.Presence.ViewerID != "" {
			r.headers.Set(presence.ViewerHeader, cfg.Presence.ViewerID)
		}
	}

	fetcher, err := lookup.NewCacheFallbackFetcher(nil, r.hub, querier, r.hub.Headers, logger)
	if err != nil {
		return nil, err
	}
	r.server = microservice.NewServer(logger, cfg.HTTPPort)
	microservice.RegisterStatusRoutes(r.server.Mux(), fetcher.Func(), r.hub.Keys, logger)
	return r, nil
}

// Start serves HTTP, starts the recorder, subscribes the configured entities
// and opens the presence sessions.
func (r *Relay) Start(ctx context.Context) error {
	if err := r.server.Listen(); err != nil {
		return err
	}
	if r.recorder != nil {
		// The signal context ends before Shutdown; Stop does the final flush.
		r.recorder.Start(context.WithoutCancel(ctx))
		r.detach = append(r.detach, r.recorder.Attach(r.hub, r.cfg.EntityIDs))
	}
	if r.forwarder != nil {
		r.detach = append(r.detach, r.forwarder.Attach(r.hub, r.cfg.EntityIDs))
	}
	for _, key := range r.cfg.EntityIDs {
		log := r.logger.With().Str("key", key).Logger()
		sub := r.hub.Subscribe(key, func(st types.Status, ok bool) {
			log.Debug().Bool("available", ok).Bool("ended", st.Ended).Int("viewers", st.Viewers).Msg("Status delivered.")
		})
		r.detach = append(r.detach, sub.Close)
	}
	for i, s := range r.sessions {
		s.Update(true, r.cfg.Presence.EntityIDs[i], r.headers)
	}
	r.server.SetReady(true)
	r.logger.Info().Int("entities", len(r.cfg.EntityIDs)).Int("presence_sessions", len(r.sessions)).Msg("Relay started.")
	return nil
}

// Shutdown tears everything down in reverse dependency order.
func (r *Relay) Shutdown(ctx context.Context) error {
	r.server.SetReady(false)
	var errs []error
	for _, s := range r.sessions {
		if err := s.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("presence session: %w", err))
		}
	}
	for _, detach := range r.detach {
		detach()
	}
	r.hub.Close()
	if r.recorder != nil {
		if err := r.recorder.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("archive recorder: %w", err))
		}
	}
	if r.publisher != nil {
		if err := r.publisher.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("publisher: %w", err))
		}
	}
	if err := r.server.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.closeClients(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (r *Relay) closeClients() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Relay) newQuerier(ctx context.Context) (livestatus.StatusQuerier, error) {
	switch r.cfg.Source.Kind {
	case "redis":
		client, err := r.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		return source.NewRedisStatusSource(&r.cfg.Source.RedisKeys, client, r.logger)
	case "firestore":
		client, err := r.firestoreClient(ctx)
		if err != nil {
			return nil, err
		}
		return source.NewFirestoreStatusSource(&r.cfg.Source.Firestore, client, r.logger)
	default:
		return statusapi.NewClient(&r.cfg.Source.HTTP, nil, r.logger)
	}
}

func (r *Relay) newPresenceClient(ctx context.Context) (presence.Client, error) {
	switch r.cfg.Presence.Store {
	case "http":
		return statusapi.NewClient(&r.cfg.Source.HTTP, nil, r.logger)
	case "redis":
		client, err := r.redisClient(ctx)
		if err != nil {
			return nil, err
		}
		store, err := cache.NewRedisPresenceCache[string, presence.ViewerRecord](&r.cfg.Source.Redis, client, r.logger)
		if err != nil {
			return nil, err
		}
		return presence.NewStoreClient(store, r.clock, r.logger), nil
	case "firestore":
		client, err := r.firestoreClient(ctx)
		if err != nil {
			return nil, err
		}
		store, err := cache.NewFirestorePresenceCache[string, presence.ViewerRecord](&r.cfg.Presence.Firestore, client)
		if err != nil {
			return nil, err
		}
		return presence.NewStoreClient(store, r.clock, r.logger), nil
	default:
		store := cache.NewInMemoryPresenceCache[string, presence.ViewerRecord]()
		return presence.NewStoreClient(store, r.clock, r.logger), nil
	}
}

func (r *Relay) newArchiveWriter(ctx context.Context) (archive.BatchWriter, error) {
	var writers archive.MultiWriter
	if bq := r.cfg.Archive.BigQuery; bq != nil {
		if bq.ProjectID == "" {
			bq.ProjectID = r.cfg.ProjectID
		}
		client, err := archive.NewProductionBigQueryClient(ctx, bq, r.logger)
		if err != nil {
			return nil, err
		}
		r.closers = append(r.closers, client.Close)
		w, err := archive.NewBigQueryWriter(ctx, client, bq, r.logger)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if gcs := r.cfg.Archive.GCS; gcs != nil {
		client, err := storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("storage client: %w", err)
		}
		r.closers = append(r.closers, client.Close)
		w, err := archive.NewGCSWriter(archive.NewObjectStore(client), *gcs, r.logger)
		if err != nil {
			return nil, err
		}
		writers = append(writers, w)
	}
	if len(writers) == 1 {
		return writers[0], nil
	}
	return writers, nil
}

// redisClient connects once and shares the client between source and presence.
func (r *Relay) redisClient(ctx context.Context) (*redis.Client, error) {
	if r.redis != nil {
		return r.redis, nil
	}
	client, err := cache.NewRedisClient(ctx, &r.cfg.Source.Redis, r.logger)
	if err != nil {
		return nil, err
	}
	r.redis = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}

func (r *Relay) firestoreClient(ctx context.Context) (*firestore.Client, error) {
	if r.firestore != nil {
		return r.firestore, nil
	}
	client, err := firestore.NewClient(ctx, r.cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("firestore client: %w", err)
	}
	r.firestore = client
	r.closers = append(r.closers, client.Close)
	return client, nil
}
