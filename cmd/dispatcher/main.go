// cmd/dispatcher runs the consumer dispatcher over one event delivery read
// from stdin, standing in for the subscription callback a real bus
// integration would supply.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/quietloop/payflow/internal/adapters/gateway"
	"github.com/quietloop/payflow/internal/adapters/notify"
	pgadapter "github.com/quietloop/payflow/internal/adapters/postgres"
	redisadapter "github.com/quietloop/payflow/internal/adapters/redis"
	"github.com/quietloop/payflow/internal/config"
	"github.com/quietloop/payflow/internal/dispatcher"
	"github.com/quietloop/payflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "dispatcher error: %v\n", err)
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

	redisClient, err := redisadapter.NewClient(redisadapter.Config{
		URL:          cfg.Redis.URL,
		Namespace:    cfg.Redis.Namespace,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})
	if err != nil {
		return fmt.Errorf("configure redis client: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	payments := pgadapter.NewPaymentRepo(pool)
	processedEvents := pgadapter.NewProcessedEventRepo(pool)
	lock := redisadapter.NewDistributedLock(redisClient, cfg.Redis.Namespace, cfg.Lock.TTL, logger)
	fakeGateway := gateway.NewFake(300*time.Millisecond, 0.3)

	processor := worker.NewProcessor(payments, lock, fakeGateway, logger)
	notifier := notify.NewFake(logger)

	d := dispatcher.NewDispatcher(processor, processedEvents, notifier, logger)

	body, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read delivery body: %w", err)
	}

	if err := d.Dispatch(ctx, body); err != nil {
		return fmt.Errorf("dispatch delivery: %w", err)
	}

	logger.Info("dispatcher invocation complete")
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
