// Package sink forwards status deliveries to Pub/Sub as a change stream.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// Publisher is a direct, non-batching publisher.
type Publisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	// Stop flushes any pending messages and accepts a context for timeout control.
	Stop(ctx context.Context) error
}

// GooglePublisherConfig names the target topic.
type GooglePublisherConfig struct {
	TopicID string `yaml:"topic_id"`
	// ResultTimeout bounds the wait for each asynchronous publish result.
	ResultTimeout time.Duration `yaml:"result_timeout"`
}

// NewGooglePublisherDefaults returns a config for topicID.
func NewGooglePublisherDefaults(topicID string) *GooglePublisherConfig {
	return &GooglePublisherConfig{
		TopicID:       topicID,
		ResultTimeout: 30 * time.Second,
	}
}

// GooglePublisher publishes straight to a Pub/Sub topic.
type GooglePublisher struct {
	topic         *pubsub.Topic
	resultTimeout time.Duration
	logger        zerolog.Logger
}

// NewGooglePublisher creates a publisher, checking that the topic exists.
func NewGooglePublisher(ctx context.Context, cfg *GooglePublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePublisher, error) {
	if client == nil {
		return nil, errors.New("pubsub client cannot be nil")
	}
	if cfg == nil || cfg.TopicID == "" {
		return nil, errors.New("pubsub topic id is required")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	timeout := cfg.ResultTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GooglePublisher{
		topic:         topic,
		resultTimeout: timeout,
		logger:        logger.With().Str("component", "GooglePublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish queues a message and returns; the outcome is logged asynchronously.
func (p *GooglePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	go func() {
		getCtx, cancel := context.WithTimeout(context.Background(), p.resultTimeout)
		defer cancel()

		msgID, err := result.Get(getCtx)
		if err != nil {
			p.logger.Error().Err(err).Msg("Failed to publish status event.")
			return
		}
		p.logger.Debug().Str("published_msg_id", msgID).Msg("Status event published.")
	}()

	return nil
}

// Stop flushes pending messages, respecting the context's timeout.
func (p *GooglePublisher) Stop(ctx context.Context) error {
	stopDone := make(chan struct{})
	go func() {
		p.topic.Stop()
		close(stopDone)
	}()

	select {
	case <-stopDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
