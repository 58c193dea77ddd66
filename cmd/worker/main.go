// cmd/worker runs the payment processing core as a short-lived
// per-invocation process: it opens its own pool and Redis client for the
// single payment it is asked to process, then disposes them on exit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"

	pgadapter "github.com/quietloop/payflow/internal/adapters/postgres"
	redisadapter "github.com/quietloop/payflow/internal/adapters/redis"
	"github.com/quietloop/payflow/internal/adapters/gateway"
	"github.com/quietloop/payflow/internal/config"
	"github.com/quietloop/payflow/internal/domain"
	"github.com/quietloop/payflow/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "worker error: %v\n", err)
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
	lock := redisadapter.NewDistributedLock(redisClient, cfg.Redis.Namespace, cfg.Lock.TTL, logger)
	fakeGateway := gateway.NewFake(300*time.Millisecond, 0.3)

	processor := worker.NewProcessor(payments, lock, fakeGateway, logger)

	paymentID, err := paymentIDFromArgs()
	if err != nil {
		return err
	}

	if err := processor.Process(ctx, paymentID); err != nil {
		return fmt.Errorf("process payment %s: %w", paymentID.String(), err)
	}

	logger.Info("worker invocation complete", "payment_id", paymentID.String())
	return nil
}

// paymentIDFromArgs reads the payment id to process from the single CLI
// argument, standing in for the trigger payload a real deployment would
// receive from its event bus subscription.
func paymentIDFromArgs() (domain.PaymentID, error) {
	if len(os.Args) < 2 {
		return domain.PaymentID{}, fmt.Errorf("usage: worker <payment_id>")
	}
	return domain.ParsePaymentID(os.Args[1])
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
