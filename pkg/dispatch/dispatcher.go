// Package dispatch routes inbound bus events to the handler registered for
// their topic and publishes the envelopes the handlers produce.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-analytics-bridge/pkg/metrics"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
)

// TopicAttribute is set on every published message.
const TopicAttribute = "topic_name"

// Dispatch outcomes, used in logs and metrics.
const (
	outcomePublished  = "published"
	outcomeNoEnvelope = "no_envelope"
	outcomeDropped    = "dropped"
	outcomeFailed     = "failed"
)

// Dispatcher is the pipeline stage between the bus consumer and the handlers.
// Transform and Process plug into a messagepipeline.StreamingService.
type Dispatcher struct {
	registry  *Registry
	publisher messagepipeline.SimplePublisher
	logger    zerolog.Logger
}

// NewDispatcher creates a Dispatcher publishing through publisher.
func NewDispatcher(registry *Registry, publisher messagepipeline.SimplePublisher, logger zerolog.Logger) (*Dispatcher, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if publisher == nil {
		return nil, fmt.Errorf("publisher cannot be nil")
	}
	return &Dispatcher{
		registry:  registry,
		publisher: publisher,
		logger:    logger.With().Str("component", "Dispatcher").Logger(),
	}, nil
}

// Transform decodes a raw frame and filters it down to a subscribed, handled
// event. Everything that does not qualify is skipped, and so acknowledged.
func (d *Dispatcher) Transform(_ context.Context, msg *messagepipeline.Message) (*types.TopicEvent, bool, error) {
	event, err := d.classify(msg.Payload)
	if err != nil {
		topic := ""
		if event != nil {
			topic = event.TopicName
		}
		metrics.EventsTotal.WithLabelValues(topicLabel(topic), outcomeDropped).Inc()
		d.logger.Warn().Err(err).Str("msg_id", msg.ID).Str("topic", topic).Msg("Dropping bus frame.")
		return nil, true, nil
	}
	if event == nil {
		return nil, true, nil
	}
	if _, ok := d.registry.Lookup(event.TopicName); !ok {
		metrics.EventsTotal.WithLabelValues(event.TopicName, outcomeDropped).Inc()
		d.logger.Debug().Str("msg_id", msg.ID).Str("topic", event.TopicName).Msg("No handler for subscribed topic, ignoring.")
		return nil, true, nil
	}
	return event, false, nil
}

// classify returns (nil, nil) for frames that are valid but not actionable.
func (d *Dispatcher) classify(payload []byte) (*types.TopicEvent, error) {
	frame, err := types.DecodeFrame(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	if frame.Persistent == nil {
		d.logger.Debug().Msg("Frame carries no persistent event, ignoring.")
		return nil, nil
	}
	event := frame.Persistent
	if !IsSubscribed(event.TopicName) {
		return event, fmt.Errorf("%w: %q", ErrUnknownTopic, event.TopicName)
	}
	return event, nil
}

// Process runs the handler for event and publishes its envelope. Handler and
// publish failures are logged and absorbed so the message is acked and the
// handler never runs twice. Persistence failures are returned so the message
// is nacked.
func (d *Dispatcher) Process(ctx context.Context, original messagepipeline.Message, event *types.TopicEvent) error {
	logger := d.logger.With().
		Str("dispatch_id", uuid.NewString()).
		Str("msg_id", original.ID).
		Str("topic", event.TopicName).
		Str("requestor_id", lookupString(event.Value, "requestor_id")).
		Str("request_id", lookupString(event.Value, "request_id")).
		Logger()

	h, ok := d.registry.Lookup(event.TopicName)
	if !ok {
		logger.Debug().Str("outcome", outcomeDropped).Msg("No handler for topic.")
		return nil
	}

	start := time.Now()
	out, err := h.Handle(ctx, *event)
	metrics.HandlerDuration.WithLabelValues(event.TopicName).Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.EventsTotal.WithLabelValues(event.TopicName, outcomeFailed).Inc()
		logEvent := logger.Warn()
		var persistErr *PersistenceError
		if errors.As(err, &persistErr) {
			logEvent = logger.Error()
		}
		logEvent = logEvent.Err(err).Str("outcome", outcomeFailed)
		var backendErr *BackendError
		if errors.As(err, &backendErr) {
			logEvent = logEvent.Int("status", backendErr.Status).Str("collaborator", backendErr.Collaborator)
		}
		logEvent.Msg("Handler failed, event dropped.")
		if persistErr != nil {
			return err
		}
		return nil
	}

	if out == nil {
		metrics.EventsTotal.WithLabelValues(event.TopicName, outcomeNoEnvelope).Inc()
		logger.Info().Str("outcome", outcomeNoEnvelope).Msg("Handler finished without an envelope.")
		return nil
	}

	attrs := map[string]string{TopicAttribute: out.Envelope.TopicName}
	if err := d.publisher.Publish(ctx, out.Frame, attrs); err != nil {
		metrics.EventsTotal.WithLabelValues(event.TopicName, outcomeFailed).Inc()
		logger.Error().Err(err).Str("outcome", outcomeFailed).Str("envelope_topic", out.Envelope.TopicName).Msg("Failed to publish envelope, event dropped.")
		return nil
	}

	metrics.EventsTotal.WithLabelValues(event.TopicName, outcomePublished).Inc()
	metrics.EnvelopesPublished.WithLabelValues(out.Envelope.TopicName).Inc()
	logger.Info().
		Str("outcome", outcomePublished).
		Str("result_topic", out.Envelope.TopicName).
		Msg("Published result envelope.")
	return nil
}

// Dispatch runs one raw frame through Transform and Process.
func (d *Dispatcher) Dispatch(ctx context.Context, payload []byte) error {
	msg := messagepipeline.Message{MessageData: messagepipeline.MessageData{ID: uuid.NewString(), Payload: payload}}
	event, skip, err := d.Transform(ctx, &msg)
	if err != nil || skip {
		return err
	}
	return d.Process(ctx, msg, event)
}

func lookupString(value map[string]any, key string) string {
	v, ok := value[key]
	if !ok {
		return ""
	}
	return stringify(v)
}

// topicLabel keeps metric cardinality bounded for unknown topics.
func topicLabel(topic string) string {
	if IsSubscribed(topic) {
		return topic
	}
	return "unknown"
}
