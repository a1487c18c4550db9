package livestatus

import (
	"os"
	"strconv"
	"time"
)

const (
	defaultPollInterval = 8 * time.Second
	defaultChunkSize    = 50
)

// HubConfig holds the polling schedule of a Hub.
type HubConfig struct {
	// PollInterval is the fixed period between poll ticks.
	PollInterval time.Duration `yaml:"poll_interval"`
	// ChunkSize is the maximum number of ids sent in one status query.
	ChunkSize int `yaml:"chunk_size"`
	// StopWhenIdle stops the poll ticker once no key has a listener; the next
	// Subscribe restarts it. When false the ticker runs until the Hub is closed.
	StopWhenIdle bool `yaml:"stop_when_idle"`
}

// NewHubConfigDefaults provides a config with the default schedule. The defaults
// can be overridden with LIVESTATUS_POLL_INTERVAL, LIVESTATUS_CHUNK_SIZE and
// LIVESTATUS_STOP_WHEN_IDLE.
func NewHubConfigDefaults() *HubConfig {
	cfg := &HubConfig{
		PollInterval: defaultPollInterval,
		ChunkSize:    defaultChunkSize,
		StopWhenIdle: true,
	}
	if v := os.Getenv("LIVESTATUS_POLL_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.PollInterval = d
		}
	}
	if v := os.Getenv("LIVESTATUS_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChunkSize = n
		}
	}
	if v := os.Getenv("LIVESTATUS_STOP_WHEN_IDLE"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.StopWhenIdle = b
		}
	}
	return cfg
}

func (c *HubConfig) withDefaults() HubConfig {
	out := *c
	if out.PollInterval <= 0 {
		out.PollInterval = defaultPollInterval
	}
	if out.ChunkSize <= 0 {
		out.ChunkSize = defaultChunkSize
	}
	return out
}
