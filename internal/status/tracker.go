package status

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/jonboulle/clockwork"
)

// Tracker records job status transitions. It is safe for concurrent use.
type Tracker struct {
	mu    sync.RWMutex
	clock clockwork.Clock
	jobs  map[string]*JobStatus
}

// NewTracker creates a tracker that knows the given jobs up front
func NewTracker(clock clockwork.Clock, jobs ...string) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	t := &Tracker{clock: clock, jobs: make(map[string]*JobStatus, len(jobs))}
	for _, job := range jobs {
		t.jobs[job] = &JobStatus{Job: job}
	}
	return t
}

func (t *Tracker) entry(job string) *JobStatus {
	s, ok := t.jobs[job]
	if !ok {
		s = &JobStatus{Job: job}
		t.jobs[job] = s
	}
	return s
}

// Begin marks job as running
func (t *Tracker) Begin(job string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	s := t.entry(job)
	s.Phase = SyncPhaseSyncing
	s.Message = "Sync in progress"
	s.LastAttempt = &now
	s.AttemptCount++
}

// Succeed marks the running job complete and stores its counters
func (t *Tracker) Succeed(job, message string, counters map[string]int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	s := t.entry(job)
	s.Phase = SyncPhaseComplete
	s.Message = message
	s.LastSuccess = &now
	s.AttemptCount = 0
	s.Counters = counters
}

// Fail marks the running job failed. Counters of the last success are kept.
func (t *Tracker) Fail(job string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(job)
	s.Phase = SyncPhaseFailed
	s.Message = err.Error()
}

// Skip counts a dropped trigger. A running job keeps its Syncing phase.
func (t *Tracker) Skip(job, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := t.entry(job)
	s.SkippedCount++
	if s.Phase != SyncPhaseSyncing {
		s.Phase = SyncPhaseSkipped
		s.Message = fmt.Sprintf("Sync skipped: %s", reason)
	}
}

// Get returns a copy of the status of job
func (t *Tracker) Get(job string) (JobStatus, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	s, ok := t.jobs[job]
	if !ok {
		return JobStatus{}, false
	}
	return s.clone(), true
}

// All returns copies of every job status ordered by job name
func (t *Tracker) All() []JobStatus {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]JobStatus, 0, len(t.jobs))
	for _, s := range t.jobs {
		out = append(out, s.clone())
	}
	slices.SortFunc(out, func(a, b JobStatus) int {
		return strings.Compare(a.Job, b.Job)
	})
	return out
}
