package messagepipeline

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/rs/zerolog"
)

// GoogleSimplePublisherConfig configures the Pub/Sub result publisher.
type GoogleSimplePublisherConfig struct {
	TopicID string
	// PublishTimeout bounds how long Publish waits for the server to accept a frame.
	PublishTimeout time.Duration
}

// NewGoogleSimplePublisherDefaults returns a config for the given topic.
func NewGoogleSimplePublisherDefaults(topicID string) *GoogleSimplePublisherConfig {
	return &GoogleSimplePublisherConfig{
		TopicID:        topicID,
		PublishTimeout: 10 * time.Second,
	}
}

// GoogleSimplePublisher publishes result frames to a Pub/Sub topic one at a time.
type GoogleSimplePublisher struct {
	topic   *pubsub.Topic
	timeout time.Duration
	logger  zerolog.Logger
}

// NewGoogleSimplePublisher verifies the topic exists before returning.
func NewGoogleSimplePublisher(ctx context.Context, cfg *GoogleSimplePublisherConfig, client *pubsub.Client, logger zerolog.Logger) (*GoogleSimplePublisher, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg == nil || cfg.TopicID == "" {
		return nil, fmt.Errorf("pubsub topic id is required")
	}
	topic := client.Topic(cfg.TopicID)

	exists, err := topic.Exists(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %w", cfg.TopicID, err)
	}
	if !exists {
		return nil, fmt.Errorf("pubsub topic %s does not exist", cfg.TopicID)
	}

	timeout := cfg.PublishTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &GoogleSimplePublisher{
		topic:   topic,
		timeout: timeout,
		logger:  logger.With().Str("component", "GoogleSimplePublisher").Str("topic_id", cfg.TopicID).Logger(),
	}, nil
}

// Publish sends a single frame and waits until Pub/Sub has accepted it, so a
// failure is reported to the caller rather than only logged.
func (p *GoogleSimplePublisher) Publish(ctx context.Context, payload []byte, attributes map[string]string) error {
	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       payload,
		Attributes: attributes,
	})

	getCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msgID, err := result.Get(getCtx)
	if err != nil {
		p.logger.Error().Err(err).Msg("Failed to publish frame.")
		return fmt.Errorf("failed to publish frame: %w", err)
	}
	p.logger.Debug().Str("published_msg_id", msgID).Msg("Frame published.")
	return nil
}

// Stop flushes pending frames, respecting the context's timeout.
func (p *GoogleSimplePublisher) Stop(ctx context.Context) error {
	if p.topic == nil {
		return nil
	}

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
