package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const defaultPresenceTTL = time.Minute

// RedisPresenceCache is a distributed implementation of PresenceCache using Redis.
// Every Set restarts the key's TTL, so a record that stops receiving heartbeats
// expires on its own even if the leave call is lost.
type RedisPresenceCache[K comparable, V any] struct {
	redisClient *redis.Client
	logger      zerolog.Logger
	prefix      string
	ttl         time.Duration
}

var _ PresenceCache[string, int] = (*RedisPresenceCache[string, int])(nil)

// NewRedisPresenceCache wraps an already connected client. The client is shared
// with other components, so Close does not close it.
func NewRedisPresenceCache[K comparable, V any](
	cfg *RedisConfig,
	client *redis.Client,
	logger zerolog.Logger,
) (*RedisPresenceCache[K, V], error) {
	if client == nil {
		return nil, errors.New("redis client cannot be nil")
	}
	ttl := cfg.PresenceTTL
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return &RedisPresenceCache[K, V]{
		redisClient: client,
		logger:      logger.With().Str("component", "RedisPresenceCache").Logger(),
		prefix:      cfg.KeyPrefix,
		ttl:         ttl,
	}, nil
}

func (c *RedisPresenceCache[K, V]) redisKey(key K) string {
	return fmt.Sprintf("%s%v", c.prefix, key)
}

// Set marshals the value to JSON and stores it in Redis with the presence TTL.
func (c *RedisPresenceCache[K, V]) Set(ctx context.Context, key K, value V) error {
	stringKey := c.redisKey(key)
	jsonData, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal presence data for key %s: %w", stringKey, err)
	}
	if err := c.redisClient.Set(ctx, stringKey, jsonData, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set presence in redis for key %s: %w", stringKey, err)
	}
	c.logger.Debug().Str("key", stringKey).Dur("ttl", c.ttl).Msg("Presence record written.")
	return nil
}

// Fetch retrieves and unmarshals a value from Redis.
func (c *RedisPresenceCache[K, V]) Fetch(ctx context.Context, key K) (V, error) {
	var zero V
	stringKey := c.redisKey(key)
	cachedData, err := c.redisClient.Get(ctx, stringKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return zero, fmt.Errorf("presence key '%s': %w", stringKey, ErrNotFound)
		}
		return zero, fmt.Errorf("redis get failed for key %s: %w", stringKey, err)
	}
	var value V
	if err := json.Unmarshal(cachedData, &value); err != nil {
		return zero, fmt.Errorf("failed to unmarshal presence data for key %s: %w", stringKey, err)
	}
	return value, nil
}

// Delete removes a key from Redis.
func (c *RedisPresenceCache[K, V]) Delete(ctx context.Context, key K) error {
	stringKey := c.redisKey(key)
	if err := c.redisClient.Del(ctx, stringKey).Err(); err != nil {
		return fmt.Errorf("redis del failed for key %s: %w", stringKey, err)
	}
	return nil
}

// Close is a no-op; the injected client is owned by the caller.
func (c *RedisPresenceCache[K, V]) Close() error {
	return nil
}
