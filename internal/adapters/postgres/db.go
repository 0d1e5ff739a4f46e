package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB owns the shared pgx connection pool.
type DB struct {
	Pool *pgxpool.Pool
}

// New opens a pool against dsn and verifies it with a ping. maxConns should
// cover the analysis fan-out: with the postgres index backend every in-flight
// sample point holds a connection for its radius query, so the ceiling is
// sized to analysis.max_concurrent plus CRUD headroom.
func New(ctx context.Context, dsn string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}

	if maxConns <= 0 {
		maxConns = 25
	}
	cfg.MaxConns = maxConns
	// A few warm connections so the first analysis after an idle spell does
	// not pay dial latency on every fan-out query.
	cfg.MinConns = min(maxConns, 4)
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 15 * time.Minute
	cfg.HealthCheckPeriod = time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.Pool.Close()
}
