// Package sync is the process-wide owner of the two sync jobs.
//
// # Jobs
//
//   - JobTeamSync: a full reconciliation of the local roster against the registration service
//   - JobScoreSync: a push of the local standings to the registration service
//
// Every trigger of a job goes through the Manager, whatever its source: the coordinator's
// tickers, a webhook, an admin request or the CLI. Each job has its own run-lock, a weighted
// semaphore of size one, so runs of the same job never overlap.
//
// # Dropping versus waiting
//
// Level-triggered work (a full pass, a score push) is started with TryRun or Dispatch and
// is dropped with ErrBusy when the job is already running: the running pass or the next
// tick repairs whatever the dropped trigger would have. Edge-triggered work (a team
// deletion, a member removal) carries information no later pass can recover, so it uses
// Locked, which waits for the lock up to the configured timeout.
//
// Run outcomes are recorded in a status.Tracker and, when configured, in telemetry.SyncMetrics.
package sync
