// Package db contains code for connecting to the database.
package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acectf/roster-sync/internal/config"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnectTimeout  = 10 * time.Second

	// defaultStartupTimeout bounds how long NewPool keeps retrying the first ping
	defaultStartupTimeout = time.Minute
)

// Option configures NewPool
type Option func(*poolOptions)

type poolOptions struct {
	startupTimeout time.Duration
	initialBackoff time.Duration
}

// WithStartupTimeout sets how long NewPool retries an unreachable database
func WithStartupTimeout(d time.Duration) Option {
	return func(o *poolOptions) {
		o.startupTimeout = d
	}
}

// WithInitialBackoff sets the first retry delay
func WithInitialBackoff(d time.Duration) Option {
	return func(o *poolOptions) {
		o.initialBackoff = d
	}
}

// NewPool creates a connection pool from the provided configuration and waits,
// with exponential backoff, until the database answers a ping
func NewPool(ctx context.Context, cfg *config.DatabaseConfig, opts ...Option) (*pgxpool.Pool, error) {
	o := &poolOptions{
		startupTimeout: defaultStartupTimeout,
		initialBackoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(o)
	}

	poolCfg, err := PoolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.initialBackoff

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(o.startupTimeout),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "Database not reachable yet",
				"attempt", attempt, "retry_in", next, "error", err)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.InfoContext(ctx, "Database connection established",
		"user", cfg.User, "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return pool, nil
}

// PoolConfig validates cfg and builds the pgx pool configuration
func PoolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	if cfg == nil {
		return nil, errors.New("database configuration is required")
	}
	if cfg.Host == "" {
		return nil, errors.New("database host is required")
	}
	if cfg.Port == 0 {
		return nil, errors.New("database port is required")
	}
	if cfg.User == "" {
		return nil, errors.New("database user is required")
	}
	if cfg.Database == "" {
		return nil, errors.New("database name is required")
	}

	connMaxLifetime := defaultConnMaxLifetime
	if cfg.ConnMaxLifetime != "" {
		d, err := time.ParseDuration(cfg.ConnMaxLifetime)
		if err != nil {
			return nil, fmt.Errorf("invalid connection max lifetime: %w", err)
		}
		connMaxLifetime = d
	}

	connStr, err := cfg.GetConnectionString()
	if err != nil {
		return nil, fmt.Errorf("failed to get database password: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(connStr)
	if err != nil {
		return nil, fmt.Errorf("invalid database configuration: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxOpenConns
	if poolCfg.MaxConns == 0 {
		poolCfg.MaxConns = defaultMaxOpenConns
	}
	poolCfg.MinConns = cfg.MaxIdleConns
	if poolCfg.MinConns == 0 {
		poolCfg.MinConns = defaultMaxIdleConns
	}
	if poolCfg.MinConns > poolCfg.MaxConns {
		poolCfg.MinConns = poolCfg.MaxConns
	}
	poolCfg.MaxConnLifetime = connMaxLifetime
	poolCfg.ConnConfig.ConnectTimeout = defaultConnectTimeout

	return poolCfg, nil
}
