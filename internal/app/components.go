package app

import (
	"github.com/acectf/roster-sync/internal/app/storage"
	"github.com/acectf/roster-sync/internal/reconcile"
	"github.com/acectf/roster-sync/internal/registration"
	"github.com/acectf/roster-sync/internal/scorepush"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
	"github.com/acectf/roster-sync/internal/sync/coordinator"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Storage owns the local roster backend
	Storage storage.Factory

	// Registration is the registration service client
	Registration registration.Client

	// Teams reconciles the local roster
	Teams *reconcile.Engine

	// Scores pushes the local standings
	Scores *scorepush.Engine

	// SyncManager serializes the sync jobs
	SyncManager pkgsync.Manager

	// SyncCoordinator schedules the periodic jobs
	SyncCoordinator coordinator.Coordinator
}

// Close releases the components in reverse order of construction
func (c *AppComponents) Close() {
	if c.SyncManager != nil {
		c.SyncManager.Close()
	}
	if c.Storage != nil {
		c.Storage.Cleanup()
	}
}
