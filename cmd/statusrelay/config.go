package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/illmade-knight/go-livestatus/pkg/archive"
	"github.com/illmade-knight/go-livestatus/pkg/cache"
	"github.com/illmade-knight/go-livestatus/pkg/livestatus"
	"github.com/illmade-knight/go-livestatus/pkg/microservice"
	"github.com/illmade-knight/go-livestatus/pkg/presence"
	"github.com/illmade-knight/go-livestatus/pkg/sink"
	"github.com/illmade-knight/go-livestatus/pkg/source"
	"github.com/illmade-knight/go-livestatus/pkg/statusapi"
	"gopkg.in/yaml.v3"
)

// Config is the relay's YAML configuration.
type Config struct {
	microservice.BaseConfig `yaml:",inline"`

	// EntityIDs are the keys the relay keeps subscribed.
	EntityIDs []string `yaml:"entity_ids"`

	Hub      livestatus.HubConfig `yaml:"hub"`
	Source   SourceConfig         `yaml:"source"`
	PubSub   *PubSubConfig        `yaml:"pubsub"`
	Archive  *ArchiveConfig       `yaml:"archive"`
	Presence *PresenceConfig      `yaml:"presence"`
}

// SourceConfig selects where statuses are read from: "http", "redis" or "firestore".
type SourceConfig struct {
	Kind      string                       `yaml:"kind"`
	HTTP      statusapi.Config             `yaml:"http"`
	Redis     cache.RedisConfig            `yaml:"redis"`
	RedisKeys source.RedisSourceConfig     `yaml:"redis_keys"`
	Firestore source.FirestoreSourceConfig `yaml:"firestore"`
}

// PubSubConfig enables the status change stream.
type PubSubConfig struct {
	Publisher sink.GooglePublisherConfig `yaml:"publisher"`
	Forwarder sink.ForwarderConfig       `yaml:"forwarder"`
}

// ArchiveConfig enables observation archiving to BigQuery and/or GCS.
type ArchiveConfig struct {
	Recorder archive.RecorderConfig  `yaml:"recorder"`
	BigQuery *archive.BigQueryConfig `yaml:"bigquery"`
	GCS      *archive.GCSConfig      `yaml:"gcs"`
}

// PresenceConfig keeps the relay present on entities. Store is "http",
// "memory", "redis" or "firestore".
type PresenceConfig struct {
	EntityIDs []int64                `yaml:"entity_ids"`
	Store     string                 `yaml:"store"`
	ViewerID  string                 `yaml:"viewer_id"`
	Session   presence.SessionConfig `yaml:"session"`
	Firestore cache.FirestoreConfig  `yaml:"firestore"`
}

func defaultConfig() *Config {
	return &Config{
		BaseConfig: microservice.BaseConfig{
			LogLevel:    "info",
			HTTPPort:    ":8080",
			ServiceName: "statusrelay",
		},
		Hub:    *livestatus.NewHubConfigDefaults(),
		Source: SourceConfig{Kind: "http", HTTP: *statusapi.NewConfigDefaults("")},
	}
}

// LoadConfig reads path over the defaults. Environment overrides for the hub
// and presence timings apply to the defaults, so explicit YAML values win.
func LoadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Presence != nil {
		defaults := presence.NewSessionConfigDefaults()
		if cfg.Presence.Session.HeartbeatInterval == 0 {
			cfg.Presence.Session.HeartbeatInterval = defaults.HeartbeatInterval
		}
		if cfg.Presence.Session.CallTimeout == 0 {
			cfg.Presence.Session.CallTimeout = defaults.CallTimeout
		}
	}
	if cfg.Archive != nil {
		defaults := archive.NewRecorderConfigDefaults()
		if cfg.Archive.Recorder.BatchSize == 0 {
			cfg.Archive.Recorder.BatchSize = defaults.BatchSize
		}
		if cfg.Archive.Recorder.FlushInterval == 0 {
			cfg.Archive.Recorder.FlushInterval = defaults.FlushInterval
		}
	}
	return cfg, cfg.Validate()
}

// Validate checks the combinations the relay cannot start with.
func (c *Config) Validate() error {
	var errs []error
	switch c.Source.Kind {
	case "http":
		if err := c.Source.HTTP.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("source.http: %w", err))
		}
	case "redis":
		if c.Source.Redis.Addr == "" {
			errs = append(errs, errors.New("source.redis.addr is required"))
		}
	case "firestore":
		if c.ProjectID == "" || c.Source.Firestore.CollectionName == "" {
			errs = append(errs, errors.New("project_id and source.firestore.collection are required"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown source kind %q", c.Source.Kind))
	}
	if c.PubSub != nil && c.PubSub.Publisher.TopicID == "" {
		errs = append(errs, errors.New("pubsub.publisher.topic_id is required"))
	}
	if c.Archive != nil && c.Archive.BigQuery == nil && c.Archive.GCS == nil {
		errs = append(errs, errors.New("archive needs bigquery and/or gcs"))
	}
	if c.Presence != nil {
		switch c.Presence.Store {
		case "http":
			if err := c.Source.HTTP.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("http presence: %w", err))
			}
		case "memory":
		case "redis":
			if c.Source.Redis.Addr == "" {
				errs = append(errs, errors.New("redis presence needs source.redis.addr"))
			}
		case "firestore":
			if c.ProjectID == "" || c.Presence.Firestore.CollectionName == "" {
				errs = append(errs, errors.New("project_id and presence.firestore.collection are required"))
			}
		default:
			errs = append(errs, fmt.Errorf("unknown presence store %q", c.Presence.Store))
		}
	}
	return errors.Join(errs...)
}
