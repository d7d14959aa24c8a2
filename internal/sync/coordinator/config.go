package coordinator

import (
	"time"

	"github.com/acectf/roster-sync/internal/config"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
)

// Schedule pairs a job with its run interval
type Schedule struct {
	Job      string
	Interval time.Duration
}

// SchedulesFromConfig returns the team and score schedules from the sync configuration
func SchedulesFromConfig(cfg *config.SyncConfig) []Schedule {
	return []Schedule{
		{Job: pkgsync.JobTeamSync, Interval: cfg.GetTeamInterval()},
		{Job: pkgsync.JobScoreSync, Interval: cfg.GetScoreInterval()},
	}
}
