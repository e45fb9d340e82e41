package messagepipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// StreamingService orchestrates a pipeline that consumes messages, transforms them
// individually, and immediately sends them to a streaming processor function.
// With a single worker, messages are handled strictly in arrival order.
type StreamingService[T any] struct {
	numWorkers  int
	consumer    MessageConsumer
	transformer MessageTransformer[T]
	processor   StreamProcessor[T]
	logger      zerolog.Logger
	wg          sync.WaitGroup
}

// StreamingServiceConfig holds configuration for a StreamingService.
type StreamingServiceConfig struct {
	// NumWorkers defaults to 1.
	NumWorkers int
}

// NewStreamingService creates a new StreamingService.
func NewStreamingService[T any](
	cfg StreamingServiceConfig,
	consumer MessageConsumer,
	transformer MessageTransformer[T],
	processor StreamProcessor[T],
	logger zerolog.Logger,
) (*StreamingService[T], error) {
	if cfg.NumWorkers <= 0 {
		cfg.NumWorkers = 1
	}
	if consumer == nil {
		return nil, fmt.Errorf("consumer cannot be nil")
	}
	if transformer == nil {
		return nil, fmt.Errorf("transformer cannot be nil")
	}
	if processor == nil {
		return nil, fmt.Errorf("processor cannot be nil")
	}

	return &StreamingService[T]{
		numWorkers:  cfg.NumWorkers,
		consumer:    consumer,
		transformer: transformer,
		processor:   processor,
		logger:      logger.With().Str("service", "StreamingService").Logger(),
	}, nil
}

// Start starts the consumer and then spawns the workers.
func (s *StreamingService[T]) Start(ctx context.Context) error {
	s.logger.Info().Msg("Starting streaming service...")

	if err := s.consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message consumer: %w", err)
	}

	s.logger.Info().Int("worker_count", s.numWorkers).Msg("Starting processing workers...")
	s.wg.Add(s.numWorkers)
	for i := 0; i < s.numWorkers; i++ {
		go s.worker(ctx, i)
	}
	return nil
}

// Stop stops the consumer first, then waits for in-flight messages.
func (s *StreamingService[T]) Stop(ctx context.Context) error {
	s.logger.Info().Msg("Stopping streaming service...")

	if err := s.consumer.Stop(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Error during consumer stop, continuing shutdown.")
	}

	workerDone := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(workerDone)
	}()

	select {
	case <-workerDone:
		s.logger.Info().Msg("All processing workers completed gracefully.")
	case <-ctx.Done():
		s.logger.Error().Err(ctx.Err()).Msg("Timeout waiting for processing workers to finish.")
		return ctx.Err()
	}
	return nil
}

func (s *StreamingService[T]) worker(ctx context.Context, workerID int) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Int("worker_id", workerID).Msg("Processing worker shutting down due to context cancellation.")
			return
		case msg, ok := <-s.consumer.Messages():
			if !ok {
				s.logger.Info().Int("worker_id", workerID).Msg("Consumer channel closed, worker exiting.")
				return
			}
			s.handle(ctx, msg, workerID)
		}
	}
}

// handle transforms and processes one message. A panic in either stage is
// contained here and the message is nacked.
func (s *StreamingService[T]) handle(ctx context.Context, msg Message, workerID int) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Interface("panic", r).Str("msg_id", msg.ID).Msg("Recovered from panic while handling message, Nacking.")
			nack(msg)
		}
	}()

	payload, skip, err := s.transformer(ctx, &msg)
	if err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Failed to transform message, Nacking.")
		nack(msg)
		return
	}
	if skip {
		s.logger.Debug().Int("worker_id", workerID).Str("msg_id", msg.ID).Msg("Transformer signaled to skip message, Acking.")
		ack(msg)
		return
	}

	if err := s.processor(ctx, msg, payload); err != nil {
		s.logger.Error().Err(err).Str("msg_id", msg.ID).Msg("Processor failed to handle message, Nacking.")
		nack(msg)
		return
	}
	ack(msg)
}

func ack(msg Message) {
	if msg.Ack != nil {
		msg.Ack()
	}
}

func nack(msg Message) {
	if msg.Nack != nil {
		msg.Nack()
	}
}
