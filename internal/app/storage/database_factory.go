package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/db"
	"github.com/acectf/roster-sync/internal/roster/memstore"
	"github.com/acectf/roster-sync/internal/roster/pgstore"
)

// DatabaseFactory serves the roster from PostgreSQL
type DatabaseFactory struct {
	pool  *pgxpool.Pool
	store *pgstore.Store
}

var _ Factory = (*DatabaseFactory)(nil)

// NewDatabaseFactory connects to the configured database, retrying until it answers
func NewDatabaseFactory(ctx context.Context, cfg *config.Config, opts ...db.Option) (*DatabaseFactory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if cfg.Database == nil {
		return nil, fmt.Errorf("database configuration is required for database storage type")
	}

	slog.Info("Creating database-backed storage factory")

	pool, err := db.NewPool(ctx, cfg.Database, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create database connection pool: %w", err)
	}
	return NewDatabaseFactoryFromPool(pool), nil
}

// NewDatabaseFactoryFromPool wraps an existing pool. The factory takes ownership of it.
func NewDatabaseFactoryFromPool(pool *pgxpool.Pool) *DatabaseFactory {
	return &DatabaseFactory{pool: pool, store: pgstore.New(pool)}
}

// Backend implements Factory
func (d *DatabaseFactory) Backend() Backend {
	return d.store
}

// Cleanup closes the connection pool
func (d *DatabaseFactory) Cleanup() {
	if d.pool != nil {
		slog.Info("Closing database connection pool")
		d.pool.Close()
	}
}

// MemoryFactory keeps the roster in process memory. Data is lost on restart.
type MemoryFactory struct {
	store *memstore.Store
}

var _ Factory = (*MemoryFactory)(nil)

// NewMemoryFactory creates an empty in-memory roster
func NewMemoryFactory() *MemoryFactory {
	slog.Warn("Using in-memory roster storage; data will not survive a restart")
	return &MemoryFactory{store: memstore.New()}
}

// Backend implements Factory
func (m *MemoryFactory) Backend() Backend {
	return m.store
}

// Store returns the concrete in-memory store, for seeding scores in development and tests
func (m *MemoryFactory) Store() *memstore.Store {
	return m.store
}

// Cleanup implements Factory
func (*MemoryFactory) Cleanup() {}
