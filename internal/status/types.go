// Package status tracks the run status of sync jobs in memory.
package status

import "time"

// SyncPhase represents the phase of a job's latest run
type SyncPhase string

const (
	// SyncPhaseSyncing means a run is in progress
	SyncPhaseSyncing SyncPhase = "Syncing"

	// SyncPhaseComplete means the last run completed successfully
	SyncPhaseComplete SyncPhase = "Complete"

	// SyncPhaseFailed means the last run failed
	SyncPhaseFailed SyncPhase = "Failed"

	// SyncPhaseSkipped means the last trigger was dropped
	SyncPhaseSkipped SyncPhase = "Skipped"
)

// JobStatus is the externally visible state of one job
type JobStatus struct {
	Job string `json:"job"`

	// Phase is empty until the first trigger
	Phase SyncPhase `json:"phase,omitempty"`

	Message string `json:"message,omitempty"`

	LastAttempt *time.Time `json:"lastAttempt,omitempty"`

	// LastSuccess is the end of the last successful run
	LastSuccess *time.Time `json:"lastSuccess,omitempty"`

	// AttemptCount is the number of attempts since the last success
	AttemptCount int `json:"attemptCount"`

	// SkippedCount is the number of dropped triggers since start
	SkippedCount int `json:"skippedCount"`

	// Counters holds the result counters of the last successful run
	Counters map[string]int `json:"counters,omitempty"`
}

func (s *JobStatus) clone() JobStatus {
	c := *s
	if s.LastAttempt != nil {
		t := *s.LastAttempt
		c.LastAttempt = &t
	}
	if s.LastSuccess != nil {
		t := *s.LastSuccess
		c.LastSuccess = &t
	}
	if s.Counters != nil {
		c.Counters = make(map[string]int, len(s.Counters))
		for k, v := range s.Counters {
			c.Counters[k] = v
		}
	}
	return c
}
