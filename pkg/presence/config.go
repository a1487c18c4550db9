package presence

import (
	"os"
	"time"
)

const (
	defaultHeartbeatInterval = 20 * time.Second
	defaultCallTimeout       = 10 * time.Second
)

// SessionConfig holds the presence call schedule.
type SessionConfig struct {
	// HeartbeatInterval is the period between heartbeats while a session is active.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	// CallTimeout bounds each join, heartbeat and leave call.
	CallTimeout time.Duration `yaml:"call_timeout"`
}

// NewSessionConfigDefaults provides a config with default timings, overridable
// with PRESENCE_HEARTBEAT_INTERVAL and PRESENCE_CALL_TIMEOUT.
func NewSessionConfigDefaults() *SessionConfig {
	cfg := &SessionConfig{
		HeartbeatInterval: defaultHeartbeatInterval,
		CallTimeout:       defaultCallTimeout,
	}
	if d, ok := envDuration("PRESENCE_HEARTBEAT_INTERVAL"); ok {
		cfg.HeartbeatInterval = d
	}
	if d, ok := envDuration("PRESENCE_CALL_TIMEOUT"); ok {
		cfg.CallTimeout = d
	}
	return cfg
}

func envDuration(name string) (time.Duration, bool) {
	v := os.Getenv(name)
	if v == "" {
		return 0, false
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func (c *SessionConfig) withDefaults() SessionConfig {
	out := *c
	if out.HeartbeatInterval <= 0 {
		out.HeartbeatInterval = defaultHeartbeatInterval
	}
	if out.CallTimeout <= 0 {
		out.CallTimeout = defaultCallTimeout
	}
	return out
}
