package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broker_crm_backend/internal/email"
	"broker_crm_backend/internal/events"
	"broker_crm_backend/internal/notification"
	"broker_crm_backend/internal/notification/outbox"
	"broker_crm_backend/internal/scheduler"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/db"
	"broker_crm_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.NewWithLevel(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("starting worker", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := db.WithRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
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
	outboxRepo := outbox.New(pool)

	notificationModule := notification.New(outboxRepo, email.NewSender(cfg), cfg, log)
	notificationModule.RegisterHandlers(eventBus)

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		panic("failed to initialize scheduler client: " + err.Error())
	}
	defer func() { _ = client.Close() }()

	worker, err := scheduler.NewWorker(cfg, eventBus, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	dispatcher := scheduler.NewNotificationOutboxDispatcher(client, outboxRepo, cfg.GetOutboxPollInterval(), log)

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		dispatcher.Run(groupCtx)
		return nil
	})
	group.Go(func() error {
		return worker.Run(groupCtx)
	})

	if err := group.Wait(); err != nil {
		log.Error("worker stopped with error", "error", err)
		panic("worker stopped with error: " + err.Error())
	}
	log.Info("worker stopped")
}
