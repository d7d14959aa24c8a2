// Package coordinator schedules the periodic sync jobs.
//
// Each configured job runs once when Start is called and then on its own ticker.
// Runs go through sync.Manager, so a tick that finds the previous run of the same job
// still executing is dropped rather than queued.
//
//	coord := coordinator.New(manager, []coordinator.Schedule{
//	    {Job: sync.JobTeamSync, Interval: time.Minute},
//	    {Job: sync.JobScoreSync, Interval: 30 * time.Second},
//	})
//	go coord.Start(ctx)
//	defer coord.Stop()
//
// The clock is injectable with WithClock so tests can drive ticks deterministically.
package coordinator
