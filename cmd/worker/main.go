package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/tournetwork/storefront/internal/config"
	"github.com/tournetwork/storefront/internal/events"
	"github.com/tournetwork/storefront/internal/ledger"
	"github.com/tournetwork/storefront/internal/obs"
	"github.com/tournetwork/storefront/internal/resilience"
)

// The worker copies booking.confirmed events from the broker into the ledger
// so they can be reconciled against the rows written at checkout.
func main() {
	cfg, err := config.LoadWorker()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := ledger.Migrate(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("migrate ledger")
	}
	pool, err := ledger.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect ledger")
	}
	defer pool.Close()
	store := &ledger.Store{DB: pool}

	prefetch := envInt("WORKER_PREFETCH", 16)
	logger.Info().Int("prefetch", prefetch).Msg("worker starting")

	attempt := 0
	for {
		started := time.Now()
		err := consume(ctx, cfg.AMQPURL, prefetch, store, logger)
		if ctx.Err() != nil {
			break
		}
		if time.Since(started) > time.Minute {
			attempt = 0
		}
		attempt++
		wait := resilience.Backoff(cfg.RetryBase, min(attempt, 8), cfg.RetryJitter)
		logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", wait).Msg("consumer_disconnected")
		select {
		case <-ctx.Done():
		case <-time.After(wait):
		}
		if ctx.Err() != nil {
			break
		}
	}
	logger.Info().Msg("worker shutdown complete")
}

func consume(ctx context.Context, url string, prefetch int, store *ledger.Store, logger zerolog.Logger) error {
	conn, err := amqp.Dial(url)
	if err != nil {
		return fmt.Errorf("amqp dial: %w", err)
	}
	defer conn.Close()
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp channel: %w", err)
	}
	defer ch.Close()

	consumer := &events.Consumer{
		Channel:  ch,
		Topic:    events.TopicBookingConfirmed,
		Name:     "ledger-worker",
		Prefetch: prefetch,
		Handle:   store.RecordEvent,
		Logger:   logger,
	}
	return consumer.Run(ctx)
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if val, ok := os.LookupEnv(key); ok {
		if parsed, err := strconv.Atoi(strings.TrimSpace(val)); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
