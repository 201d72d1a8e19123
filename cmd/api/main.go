package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"broker_crm_backend/internal/adapters"
	"broker_crm_backend/internal/auth"
	apphttp "broker_crm_backend/internal/http"
	"broker_crm_backend/internal/http/router"
	"broker_crm_backend/internal/leads"
	"broker_crm_backend/internal/notification"
	"broker_crm_backend/internal/notification/outbox"
	"broker_crm_backend/internal/users"
	"broker_crm_backend/internal/webhook"
	"broker_crm_backend/platform/config"
	"broker_crm_backend/platform/db"
	"broker_crm_backend/platform/logger"
	"broker_crm_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.NewWithLevel(cfg.Env, cfg.LogLevel)
	defer func() { _ = log.Sync() }()
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

	if err := db.WithRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, cfg)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database migrations complete")

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
	log.Info("database connection established")

	// Shared validator instance for dependency injection
	val := validator.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	// Notifications are only queued here; cmd/worker delivers them.
	notifications := notification.NewDispatcher(outbox.New(pool), log)

	authModule := auth.NewModule(pool, cfg, val, log)

	leadsModule, err := leads.NewModule(pool, adapters.NewLeadNotificationDispatcher(notifications), val, cfg, log)
	if err != nil {
		log.Error("failed to initialize leads module", "error", err)
		panic("failed to initialize leads module: " + err.Error())
	}

	usersModule, err := users.NewModule(
		adapters.NewUsersProfileStore(authModule.Repository()),
		adapters.NewUsersAccessRequestNotifier(notifications),
		val, log,
	)
	if err != nil {
		log.Error("failed to initialize users module", "error", err)
		panic("failed to initialize users module: " + err.Error())
	}

	webhookModule := webhook.NewModule(pool, adapters.NewWebhookLeadCreator(leadsModule.Service()), val, cfg, log)

	// ========================================================================
	// HTTP Layer
	// ========================================================================

	app := &apphttp.App{
		Config: cfg,
		Logger: log,
		Health: pool,
		Gate:   authModule.Gate(),
		Modules: []apphttp.Module{
			authModule,
			leadsModule,
			usersModule,
			webhookModule,
		},
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}
