package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dispatch_backend/internal/events"
	"dispatch_backend/internal/plans"
	"dispatch_backend/internal/sweeper"
	"dispatch_backend/internal/visits"
	"dispatch_backend/platform/config"
	"dispatch_backend/platform/db"
	"dispatch_backend/platform/logger"
	"dispatch_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting sweeper", "env", cfg.Env, "queue", cfg.AsynqQueueName)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	eventBus := events.NewInMemoryBus(log)
	val := validator.New()

	// The worker promotes nothing to visits on its own, but generation and the
	// visit-completion subscription share the same wiring as the API binary.
	visitsModule := visits.New(pool, eventBus, log)
	plansModule, err := plans.New(pool, visitsModule.Service(), eventBus, cfg, log, val)
	if err != nil {
		log.Error("failed to initialize plans module", "error", err)
		panic("failed to initialize plans module: " + err.Error())
	}

	client, err := sweeper.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize sweep client", "error", err)
		panic("failed to initialize sweep client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	dispatcher := sweeper.NewDispatcher(cfg, client, log)
	go dispatcher.Run(ctx)

	worker, err := sweeper.NewWorker(cfg, plansModule.Service(), log)
	if err != nil {
		log.Error("failed to initialize sweep worker", "error", err)
		panic("failed to initialize sweep worker: " + err.Error())
	}
	defer func() { _ = worker.Close() }()

	worker.Run(ctx)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
