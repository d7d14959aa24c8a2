package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/acectf/roster-sync/internal/reconcile"
	"github.com/acectf/roster-sync/internal/scorepush"
	"github.com/acectf/roster-sync/internal/status"
	"github.com/acectf/roster-sync/internal/telemetry"
)

// Job names
const (
	JobTeamSync  = "team-sync"
	JobScoreSync = "score-sync"
)

// DefaultLockTimeout bounds how long Locked waits for an in-flight run
const DefaultLockTimeout = 2 * time.Minute

var (
	// ErrBusy is returned when a job is already running
	ErrBusy = errors.New("sync job already running")

	// ErrUnknownJob is returned for a job name the manager does not own
	ErrUnknownJob = errors.New("unknown sync job")
)

// TeamSyncer runs a full reconciliation pass
type TeamSyncer interface {
	FullSync(ctx context.Context) (*reconcile.Result, error)
}

// ScorePusher runs one score push
type ScorePusher interface {
	Run(ctx context.Context) (*scorepush.Result, error)
}

// Report is the outcome of one run. Exactly one of Teams and Scores is set.
type Report struct {
	Job      string            `json:"job"`
	Teams    *reconcile.Result `json:"teams,omitempty"`
	Scores   *scorepush.Result `json:"scores,omitempty"`
	Duration time.Duration     `json:"duration"`
}

// Manager serializes runs of each sync job
//
//go:generate mockgen -destination=mocks/mock_manager.go -package=mocks -source=manager.go Manager
type Manager interface {
	// TryRun runs job now and returns ErrBusy if it is already running
	TryRun(ctx context.Context, job string) (*Report, error)

	// Dispatch starts TryRun in the background, detached from ctx's cancellation
	Dispatch(ctx context.Context, job string)

	// Locked runs fn holding job's lock, waiting for an in-flight run to finish
	Locked(ctx context.Context, job string, fn func(ctx context.Context) error) error

	// Status returns the status of every job
	Status() []status.JobStatus

	// Close cancels dispatched runs and waits for them to return
	Close()
}

// Option configures the default manager
type Option func(*defaultManager)

// WithLockTimeout sets how long Locked waits for the lock
func WithLockTimeout(d time.Duration) Option {
	return func(m *defaultManager) {
		m.lockTimeout = d
	}
}

// WithSyncMetrics sets the metrics recorder
func WithSyncMetrics(metrics *telemetry.SyncMetrics) Option {
	return func(m *defaultManager) {
		m.metrics = metrics
	}
}

type job struct {
	sem *semaphore.Weighted
	run func(ctx context.Context, report *Report) (string, map[string]int, error)
}

type defaultManager struct {
	jobs        map[string]*job
	tracker     *status.Tracker
	metrics     *telemetry.SyncMetrics
	lockTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewManager creates the manager owning JobTeamSync and JobScoreSync
func NewManager(teams TeamSyncer, scores ScorePusher, tracker *status.Tracker, opts ...Option) Manager {
	ctx, cancel := context.WithCancel(context.Background())
	m := &defaultManager{
		tracker:     tracker,
		lockTimeout: DefaultLockTimeout,
		ctx:         ctx,
		cancel:      cancel,
	}
	m.jobs = map[string]*job{
		JobTeamSync: {
			sem: semaphore.NewWeighted(1),
			run: func(ctx context.Context, report *Report) (string, map[string]int, error) {
				res, err := teams.FullSync(ctx)
				if err != nil {
					return "", nil, err
				}
				report.Teams = res
				m.metrics.RecordTeamErrors(ctx, res.Errors)
				msg := fmt.Sprintf("Reconciled %d teams (%d created, %d updated, %d errors)",
					res.Teams, res.Created, res.Updated, res.Errors)
				return msg, map[string]int{
					"teams":     res.Teams,
					"created":   res.Created,
					"updated":   res.Updated,
					"unchanged": res.Unchanged,
					"reported":  res.Reported,
					"errors":    res.Errors,
				}, nil
			},
		},
		JobScoreSync: {
			sem: semaphore.NewWeighted(1),
			run: func(ctx context.Context, report *Report) (string, map[string]int, error) {
				res, err := scores.Run(ctx)
				if err != nil {
					return "", nil, err
				}
				report.Scores = res
				msg := fmt.Sprintf("Pushed %d of %d standings (%d skipped)", res.Pushed, res.Standings, res.Skipped)
				return msg, map[string]int{
					"standings": res.Standings,
					"pushed":    res.Pushed,
					"skipped":   res.Skipped,
				}, nil
			},
		},
	}
	if m.tracker == nil {
		m.tracker = status.NewTracker(nil, JobTeamSync, JobScoreSync)
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *defaultManager) lookup(name string) (*job, error) {
	j, ok := m.jobs[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownJob)
	}
	return j, nil
}

// TryRun implements Manager
func (m *defaultManager) TryRun(ctx context.Context, name string) (*Report, error) {
	j, err := m.lookup(name)
	if err != nil {
		return nil, err
	}
	if !j.sem.TryAcquire(1) {
		m.tracker.Skip(name, "previous run still in progress")
		m.metrics.RecordSkipped(ctx, name)
		slog.DebugContext(ctx, "Sync job already running, trigger dropped", "job", name)
		return nil, fmt.Errorf("%s: %w", name, ErrBusy)
	}
	defer j.sem.Release(1)

	return m.execute(ctx, name, j)
}

func (m *defaultManager) execute(ctx context.Context, name string, j *job) (report *Report, err error) {
	start := time.Now()
	m.tracker.Begin(name)
	report = &Report{Job: name}

	// a panicking engine must not leave the job marked as running
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s panicked: %v", name, r)
			report = nil
			m.tracker.Fail(name, err)
			slog.ErrorContext(ctx, "Sync job panicked", "job", name, "panic", r)
		}
	}()

	msg, counters, err := j.run(ctx, report)
	report.Duration = time.Since(start)
	m.metrics.RecordJobDuration(ctx, name, report.Duration, err == nil)
	if err != nil {
		m.tracker.Fail(name, err)
		slog.ErrorContext(ctx, "Sync job failed", "job", name, "duration", report.Duration, "error", err)
		return nil, err
	}
	m.tracker.Succeed(name, msg, counters)
	return report, nil
}

// Dispatch implements Manager
func (m *defaultManager) Dispatch(ctx context.Context, name string) {
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	stop := context.AfterFunc(m.ctx, cancel)

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		defer stop()

		if _, err := m.TryRun(runCtx, name); err != nil && !errors.Is(err, ErrBusy) {
			slog.WarnContext(runCtx, "Dispatched sync job failed", "job", name, "error", err)
		}
	}()
}

// Locked implements Manager
func (m *defaultManager) Locked(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	j, err := m.lookup(name)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
	defer cancel()
	if err := j.sem.Acquire(waitCtx, 1); err != nil {
		return fmt.Errorf("waiting for %s: %w", name, errors.Join(ErrBusy, err))
	}
	defer j.sem.Release(1)

	return fn(ctx)
}

// Status implements Manager
func (m *defaultManager) Status() []status.JobStatus {
	return m.tracker.All()
}

// Close implements Manager
func (m *defaultManager) Close() {
	m.cancel()
	m.wg.Wait()
}
