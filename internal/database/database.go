// Package database manages the shared PostgreSQL connection pool and
// bootstraps the gateway's control-plane schema on startup.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DB wraps the single pgx connection pool shared by every request.
// Pooled connections are reused across tenants; anything session-scoped
// (notably the schema search path) must be re-established per statement
// by the query executor.
type DB struct {
	Pool *pgxpool.Pool
}

// Open connects to PostgreSQL, verifies the connection, and bootstraps
// the control-plane schema.
func Open(ctx context.Context, connString string) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("database: parse config: %w", err)
	}

	cfg.MaxConns = 20
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: bootstrap schema: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close shuts down the connection pool. Call this during graceful shutdown.
func (db *DB) Close() {
	db.Pool.Close()
}
