// Command analyticsbridge connects the pub/sub bus to the analytics services.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/illmade-knight/go-analytics-bridge/pkg/config"
	"github.com/illmade-knight/go-analytics-bridge/pkg/dispatch"
	"github.com/illmade-knight/go-analytics-bridge/pkg/logging"
	"github.com/illmade-knight/go-analytics-bridge/pkg/messagepipeline"
	"github.com/illmade-knight/go-analytics-bridge/pkg/microservice"
	"github.com/illmade-knight/go-analytics-bridge/pkg/types"
	"github.com/rs/zerolog"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "analyticsbridge: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal().Err(err).Msg("Analytics bridge failed.")
	}
}

func run(ctx context.Context, cfg *config.Config, logger zerolog.Logger) error {
	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	store, closer, err := newWatermarkStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = appendCloser(closers, closer)

	source, closer, err := newMediaSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = appendCloser(closers, closer)

	deps, err := newDependencies(cfg, store, source, logger)
	if err != nil {
		return err
	}

	registry := dispatch.NewRegistry()
	if err := dispatch.RegisterDefaults(registry, deps); err != nil {
		return fmt.Errorf("failed to register handlers: %w", err)
	}

	conn, closer, err := newBusConnection(ctx, cfg, logger)
	if err != nil {
		return err
	}
	closers = appendCloser(closers, closer)

	dispatcher, err := dispatch.NewDispatcher(registry, conn, logger)
	if err != nil {
		return err
	}

	service, err := messagepipeline.NewStreamingService[types.TopicEvent](
		messagepipeline.StreamingServiceConfig{NumWorkers: cfg.Pipeline.Workers},
		conn,
		messagepipeline.WithPayloadValidation[types.TopicEvent](
			dispatcher.Transform,
			cfg.Pipeline.MinFrameBytes,
			cfg.Pipeline.MaxFrameBytes,
			logger,
		),
		dispatcher.Process,
		logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create streaming service: %w", err)
	}

	server := microservice.NewBaseServer(logger, cfg.Server.HTTPPort, conn.Connected)
	if err := server.Start(); err != nil {
		return err
	}
	if err := service.Start(ctx); err != nil {
		return err
	}
	logger.Info().
		Str("transport", cfg.Bus.Transport).
		Strs("topics", registry.Topics()).
		Int("workers", cfg.Pipeline.Workers).
		Msg("Analytics bridge started.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := service.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Streaming service did not stop cleanly.")
	}
	if err := conn.Stop(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Bus connection did not stop cleanly.")
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("HTTP server did not stop cleanly.")
	}
	logger.Info().Msg("Analytics bridge stopped.")
	return nil
}

func appendCloser(closers []io.Closer, c io.Closer) []io.Closer {
	if c == nil {
		return closers
	}
	return append(closers, c)
}
