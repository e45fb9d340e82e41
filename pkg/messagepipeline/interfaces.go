package messagepipeline

import (
	"context"
)

// ====================================================================================
// This file defines the contracts of the bridge pipeline: a consumer that delivers
// raw bus frames, a transformer that turns a frame into a typed event, and a
// processor that acts on that event.
// ====================================================================================

// --- Stage 1: Consumer ---

// MessageConsumer defines the interface for a bus connection delivering frames
// (websocket, MQTT, Pub/Sub).
type MessageConsumer interface {
	// Messages returns a read-only channel from which pipeline workers will receive messages.
	Messages() <-chan Message
	// Start begins consumption. It must not block.
	Start(ctx context.Context) error
	// Stop gracefully ceases message consumption and waits for background tasks to finish.
	Stop(ctx context.Context) error
	// Done returns a channel that is closed when the consumer has completely shut down.
	Done() <-chan struct{}
}

// --- Stage 2: Transformer ---

// MessageTransformer turns a generic Message into a structured payload of type T.
//
// The 'skip' return value can be set to true to signal that this message should
// be acknowledged and not processed further, effectively filtering it from the pipeline.
type MessageTransformer[T any] func(ctx context.Context, msg *Message) (payload *T, skip bool, err error)

// --- Stage 3: Processor ---

// StreamProcessor handles transformed messages of type T one by one. Returning
// an error causes the pipeline to Nack the message.
type StreamProcessor[T any] func(ctx context.Context, original Message, payload *T) error

// --- Outbound ---

// SimplePublisher sends one encoded frame back onto the bus.
type SimplePublisher interface {
	Publish(ctx context.Context, payload []byte, attributes map[string]string) error
	// Stop flushes any pending messages and accepts a context for timeout control.
	Stop(ctx context.Context) error
}
