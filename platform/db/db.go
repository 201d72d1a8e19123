// Package db owns the Postgres pool shared by the lead API and the outbox worker.
package db

import (
	"context"
	"fmt"
	"time"

	"broker_crm_backend/platform/config"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Pool sizing for one process. Bulk requests hold a single connection per
// transaction, so the ceiling stays well under a default Postgres max_connections.
const (
	maxConns          = 25
	minConns          = 2
	maxConnLifetime   = time.Hour
	maxConnIdleTime   = 15 * time.Minute
	healthCheckPeriod = time.Minute
)

// NewPool opens the lead store pool and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := parsePoolConfig(cfg.GetDatabaseURL())
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("open lead store pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping lead store: %w", err)
	}

	return pool, nil
}

func parsePoolConfig(url string) (*pgxpool.Config, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DATABASE_URL: %w", err)
	}

	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = minConns
	poolConfig.MaxConnLifetime = maxConnLifetime
	poolConfig.MaxConnIdleTime = maxConnIdleTime
	poolConfig.HealthCheckPeriod = healthCheckPeriod

	return poolConfig, nil
}
