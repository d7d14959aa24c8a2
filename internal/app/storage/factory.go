// Package storage builds the local roster backend selected by the configuration.
package storage

import (
	"context"
	"fmt"

	"github.com/acectf/roster-sync/internal/config"
	"github.com/acectf/roster-sync/internal/roster"
)

// Backend is a store that can also compute the local scoreboard
type Backend interface {
	roster.Store
	roster.Scoreboard
}

// Factory creates the storage backend and owns its resources
type Factory interface {
	// Backend returns the roster store and scoreboard
	Backend() Backend

	// Cleanup releases any resources held by this factory.
	// For database factories, this closes the connection pool.
	Cleanup()
}

// NewStorageFactory creates a storage factory based on the configured storage type
func NewStorageFactory(ctx context.Context, cfg *config.Config) (Factory, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}

	switch cfg.Storage.GetType() {
	case config.StorageTypeDatabase:
		return NewDatabaseFactory(ctx, cfg)
	case config.StorageTypeMemory:
		return NewMemoryFactory(), nil
	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Storage.GetType())
	}
}
