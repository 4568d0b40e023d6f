package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/attaboy/seamless/internal/infra"
	"github.com/attaboy/seamless/internal/repository"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("outbox relay failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.LedgerDriver != "postgres" {
		return fmt.Errorf("outbox relay needs LEDGER_DRIVER=postgres, got %q", cfg.LedgerDriver)
	}

	pool, err := infra.NewPostgresPool(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()
	logger.Info("outbox-relay connected to postgres")

	publisher, err := infra.NewPublisher(cfg, logger)
	if err != nil {
		return fmt.Errorf("event publisher: %w", err)
	}
	defer publisher.Close()

	source := repository.OutboxSource{DB: pool, Repo: repository.NewOutboxRepository()}
	logger.Info("outbox-relay starting",
		"bus", cfg.EventBus,
		"poll_interval", cfg.OutboxPollInterval,
		"batch_size", cfg.OutboxBatchSize)

	infra.NewOutboxPoller(source, publisher, cfg.OutboxPollInterval, cfg.OutboxBatchSize, logger).Run(ctx)
	logger.Info("outbox-relay shutting down")
	return nil
}
