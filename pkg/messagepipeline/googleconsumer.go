package messagepipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/rs/zerolog"
)

const pubsubTransport = "pubsub"

// GooglePubsubConsumerConfig configures a subscription-backed bus consumer.
type GooglePubsubConsumerConfig struct {
	SubscriptionID         string
	MaxOutstandingMessages int
	NumGoroutines          int
}

// NewGooglePubsubConsumerDefaults returns a config for the given subscription.
func NewGooglePubsubConsumerDefaults(subID string) *GooglePubsubConsumerConfig {
	return &GooglePubsubConsumerConfig{
		SubscriptionID:         subID,
		MaxOutstandingMessages: 100,
		NumGoroutines:          1,
	}
}

// GooglePubsubConsumer delivers frames published to a Pub/Sub subscription.
type GooglePubsubConsumer struct {
	subscription       *pubsub.Subscription
	logger             zerolog.Logger
	outputChan         chan Message
	stopOnce           sync.Once
	cancelSubscription context.CancelFunc
	doneChan           chan struct{}
}

// NewGooglePubsubConsumer checks that the subscription exists.
func NewGooglePubsubConsumer(cfg *GooglePubsubConsumerConfig, client *pubsub.Client, logger zerolog.Logger) (*GooglePubsubConsumer, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil")
	}
	if cfg == nil || cfg.SubscriptionID == "" {
		return nil, fmt.Errorf("pubsub subscription id is required")
	}
	sub := client.Subscription(cfg.SubscriptionID)

	existsCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %w", cfg.SubscriptionID, err)
	}
	if !exists {
		return nil, fmt.Errorf("subscription %s does not exist", cfg.SubscriptionID)
	}

	outstanding := cfg.MaxOutstandingMessages
	if outstanding <= 0 {
		outstanding = 100
	}
	sub.ReceiveSettings.MaxOutstandingMessages = outstanding
	if cfg.NumGoroutines > 0 {
		sub.ReceiveSettings.NumGoroutines = cfg.NumGoroutines
	}

	return &GooglePubsubConsumer{
		subscription: sub,
		logger:       logger.With().Str("component", "GooglePubsubConsumer").Str("subscription_id", cfg.SubscriptionID).Logger(),
		outputChan:   make(chan Message, outstanding),
		doneChan:     make(chan struct{}),
	}, nil
}

// Messages returns the channel of received frames.
func (c *GooglePubsubConsumer) Messages() <-chan Message { return c.outputChan }

// Start begins receiving in the background.
func (c *GooglePubsubConsumer) Start(ctx context.Context) error {
	receiveCtx, cancel := context.WithCancel(ctx)
	c.cancelSubscription = cancel
	metrics.BusConnected.WithLabelValues(pubsubTransport).Set(1)

	go func() {
		defer close(c.doneChan)
		defer close(c.outputChan)
		defer metrics.BusConnected.WithLabelValues(pubsubTransport).Set(0)

		c.logger.Info().Msg("Pub/Sub receive started.")
		err := c.subscription.Receive(receiveCtx, func(ctx context.Context, msg *pubsub.Message) {
			payload := make([]byte, len(msg.Data))
			copy(payload, msg.Data)
			metrics.BusFramesReceived.WithLabelValues(pubsubTransport).Inc()

			consumed := Message{
				MessageData: MessageData{
					ID:          msg.ID,
					Payload:     payload,
					PublishTime: msg.PublishTime,
				},
				Attributes: msg.Attributes,
				Ack:        msg.Ack,
				Nack:       msg.Nack,
			}

			select {
			case c.outputChan <- consumed:
			case <-receiveCtx.Done():
				msg.Nack()
				c.logger.Warn().Str("msg_id", msg.ID).Msg("Consumer stopping, nacking frame.")
			}
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error().Err(err).Msg("Pub/Sub receive exited with error.")
		}
		c.logger.Info().Msg("Pub/Sub receive stopped.")
	}()
	return nil
}

// Stop cancels the receive loop and waits for it to exit.
func (c *GooglePubsubConsumer) Stop(ctx context.Context) error {
	var err error
	c.stopOnce.Do(func() {
		if c.cancelSubscription != nil {
			c.cancelSubscription()
		} else {
			close(c.outputChan)
			close(c.doneChan)
			return
		}
		select {
		case <-c.doneChan:
		case <-ctx.Done():
			err = fmt.Errorf("timed out waiting for pubsub consumer to stop: %w", ctx.Err())
		}
	})
	return err
}

// Done is closed once the receive loop has exited.
func (c *GooglePubsubConsumer) Done() <-chan struct{} { return c.doneChan }
