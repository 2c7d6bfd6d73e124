package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Run bookkeeping is a handful of short writes per render, so the pool
// stays small and keeps a warm connection for status reads.
const (
	runPoolMaxConns    = 8
	runPoolMinConns    = 1
	runPoolConnTTL     = time.Hour
	runPoolIdleTimeout = 15 * time.Minute
	connectTimeout     = 10 * time.Second
)

// Postgres holds the pool behind the run store.
type Postgres struct {
	Pool *pgxpool.Pool
}

// PoolConfig parses a DATABASE_URL and applies the run-store pool limits.
// Limits written into the URL (pool_max_conns and friends) win.
func PoolConfig(connString string) (*pgxpool.Config, error) {
	cfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if !hasParam(cfg, "pool_max_conns") {
		cfg.MaxConns = runPoolMaxConns
	}
	if !hasParam(cfg, "pool_min_conns") {
		cfg.MinConns = runPoolMinConns
	}
	cfg.MaxConnLifetime = runPoolConnTTL
	cfg.MaxConnIdleTime = runPoolIdleTimeout
	return cfg, nil
}

// pgxpool strips pool_* keys from the runtime params, so look at the raw string.
func hasParam(cfg *pgxpool.Config, name string) bool {
	return strings.Contains(cfg.ConnString(), name+"=")
}

// NewPostgres connects the run store and fails fast when the database is unreachable.
func NewPostgres(connString string) (*Postgres, error) {
	cfg, err := PoolConfig(connString)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{Pool: pool}, nil
}

// Migrate runs idempotent schema statements in order.
func (p *Postgres) Migrate(ctx context.Context, statements ...string) error {
	for i, stmt := range statements {
		if _, err := p.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}
	return nil
}

func (p *Postgres) Close() {
	p.Pool.Close()
}

// HealthCheck backs the "postgres" entry of /health.
func (p *Postgres) HealthCheck(ctx context.Context) error {
	return p.Pool.Ping(ctx)
}
