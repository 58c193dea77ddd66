// cmd/publisher runs one outbox-drain cycle as a short-lived
// per-invocation process.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/quietloop/payflow/internal/adapters/bus"
	pgadapter "github.com/quietloop/payflow/internal/adapters/postgres"
	"github.com/quietloop/payflow/internal/config"
	"github.com/quietloop/payflow/internal/publisher"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "publisher error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg.IsProd())
	ctx := context.Background()

	pool, err := pgadapter.NewPool(ctx, pgadapter.PoolConfig{
		DSN:               cfg.Database.DSN,
		MaxConns:          cfg.Database.MaxConns,
		MinConns:          cfg.Database.MinConns,
		MaxConnLifetime:   cfg.Database.MaxConnLifeTime,
		MaxConnIdleTime:   cfg.Database.MaxConnIdleTime,
		HealthCheckPeriod: cfg.Database.HealthPeriod,
	})
	if err != nil {
		return fmt.Errorf("connect to postgres: %w", err)
	}
	defer pool.Close()

	eventBus, err := bus.New(ctx, bus.Config{
		UseAWSEvents: cfg.Bus.UseAWSEvents,
		EventBusName: cfg.Bus.EventBusName,
		AWSRegion:    cfg.Bus.AWSRegion,
		AMQPURL:      cfg.Bus.AMQPURL,
		AMQPExchange: cfg.Bus.AMQPExchange,
	}, logger)
	if err != nil {
		return fmt.Errorf("configure event bus: %w", err)
	}

	outbox := pgadapter.NewOutboxRepo(pool)
	pub := publisher.NewPublisher(outbox, eventBus, cfg.Publisher.BatchSize, logger)

	published, err := pub.Run(ctx)
	if err != nil {
		return fmt.Errorf("drain outbox: %w", err)
	}

	logger.Info("publisher invocation complete", "published", published)
	return nil
}

func newLogger(prod bool) *slog.Logger {
	opts := &slog.HandlerOptions{AddSource: prod}
	var handler slog.Handler
	if prod {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
