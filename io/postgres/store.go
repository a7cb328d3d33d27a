// Package postgres implements interfaces.ReviewStore on PostgreSQL.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/igorsal/pr-sentinel/internal/config"
	"github.com/igorsal/pr-sentinel/internal/interfaces"
)

const connectTimeout = 10 * time.Second

// Store persists reviews and their comments
type Store struct {
	pool    *pgxpool.Pool
	logger  interfaces.Logger
	metrics interfaces.MetricsCollector
}

// Open connects a pool and verifies the connection
func Open(ctx context.Context, cfg config.DatabaseConfig, logger interfaces.Logger, metrics interfaces.MetricsCollector) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse pool config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(connectCtx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("open pool: %w", err)
	}
	if err := pool.Ping(connectCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping pool: %w", err)
	}

	logger.Info("PostgreSQL ready",
		"host", poolCfg.ConnConfig.Host,
		"database", poolCfg.ConnConfig.Database,
		"max_conns", poolCfg.MaxConns,
	)

	return &Store{
		pool:    pool,
		logger:  logger.With("component", "postgres"),
		metrics: metrics,
	}, nil
}

// Ping checks the database is reachable
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDuration("db_query_duration_seconds", time.Since(start).Seconds(), map[string]string{"operation": operation})
	s.metrics.IncrementCounter("db_queries_total", map[string]string{"operation": operation, "status": status})
}
