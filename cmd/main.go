package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"voice-privacy-pipeline/internal/config"
	"voice-privacy-pipeline/internal/events"
	"voice-privacy-pipeline/internal/observability"
	"voice-privacy-pipeline/internal/observability/logging"
	"voice-privacy-pipeline/internal/pipeline"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init(logging.Config{Level: "info", Format: "console"})
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Observability.LogLevel,
		Format: cfg.Observability.LogFormat,
	})

	publisher := events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		Topic:     cfg.Kafka.Topic,
		Principal: cfg.Kafka.Principal,
	})
	defer publisher.Close()

	var metricsServer *observability.Server
	if cfg.Observability.MetricsAddr != "" {
		metricsServer = observability.NewServer(cfg.Observability.MetricsAddr)
		metricsServer.Start()
	}

	// SIGINT/SIGTERM cancels the in-flight turn; each stage honors the
	// context so teardown is prompt even mid-poll or mid-stream.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := pipeline.New(cfg, publisher).RunTurn(ctx)

	if metricsServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		metricsServer.Shutdown(shutdownCtx)
		cancel()
	}

	if err != nil {
		log.Error().Err(err).Msg("voice turn failed")
		publisher.Close()
		os.Exit(1)
	}

	log.Info().
		Str("turnId", result.TurnID).
		Str("jobId", result.JobID).
		Int("polls", result.Polls).
		Int("deltas", result.Deltas).
		Float64("replySeconds", result.ReplySecs).
		Str("output", result.ReplyPath).
		Msg("voice turn complete")
}
