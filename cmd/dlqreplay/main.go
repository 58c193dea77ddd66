// cmd/dlqreplay runs one DLQ Replay (C9) batch.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"

	"github.com/quietloop/payflow/internal/adapters/bus"
	"github.com/quietloop/payflow/internal/adapters/sqsdlq"
	"github.com/quietloop/payflow/internal/config"
	"github.com/quietloop/payflow/internal/dlqreplay"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dlqreplay error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DLQ.URL == "" {
		return fmt.Errorf("DLQ_URL is required to run dlqreplay")
	}

	logger := newLogger(cfg.IsProd())
	ctx := context.Background()

	dlqClient, err := sqsdlq.NewClient(ctx, cfg.Bus.AWSRegion, cfg.DLQ.URL)
	if err != nil {
		return fmt.Errorf("configure dlq client: %w", err)
	}

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

	replayer := dlqreplay.NewReplayer(dlqClient, eventBus, logger)

	replayed, dropped, err := replayer.Run(ctx)
	if err != nil {
		return fmt.Errorf("run dlq replay: %w", err)
	}

	logger.Info("dlq replay invocation complete", "replayed", replayed, "dropped", dropped)
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
