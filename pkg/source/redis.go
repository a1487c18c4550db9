package source

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/illmade-knight/go-livestatus/pkg/types"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RedisSourceConfig names the keyspace holding status values. Each entity's
// status is a JSON string at KeyPrefix+id.
type RedisSourceConfig struct {
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// RedisStatusSource reads status values with a single MGET per query.
type RedisStatusSource struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger zerolog.Logger
}

// NewRedisStatusSource creates a source over an already connected client.
func NewRedisStatusSource(cfg *RedisSourceConfig, client *redis.Client, logger zerolog.Logger) (*RedisStatusSource, error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	prefix := "livestatus:status:"
	var ttl time.Duration
	if cfg != nil {
		if cfg.KeyPrefix != "" {
			prefix = cfg.KeyPrefix
		}
		ttl = cfg.TTL
	}
	return &RedisStatusSource{
		client: client,
		prefix: prefix,
		ttl:    ttl,
		logger: logger.With().Str("component", "RedisStatusSource").Logger(),
	}, nil
}

// QueryStatus fetches all ids in one MGET. Missing keys and values that do not
// decode are left out of the result. Headers are not used.
func (s *RedisStatusSource) QueryStatus(ctx context.Context, ids []int64, _ http.Header) (map[string]types.Status, error) {
	out := make(map[string]types.Status, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.key(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis mget: %w", err)
	}

	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		var st types.Status
		if err := json.Unmarshal([]byte(str), &st); err != nil {
			s.logger.Warn().Err(err).Str("key", keys[i]).Msg("Skipping undecodable status value.")
			continue
		}
		out[types.EntityKey(ids[i])] = st
	}
	return out, nil
}

// WriteStatus stores the status for id, for producers sharing the keyspace.
func (s *RedisStatusSource) WriteStatus(ctx context.Context, id int64, st types.Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("failed to marshal status for %d: %w", id, err)
	}
	if err := s.client.Set(ctx, s.key(id), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set for %d: %w", id, err)
	}
	return nil
}

func (s *RedisStatusSource) key(id int64) string {
	return s.prefix + types.EntityKey(id)
}
