package sync_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/acectf/roster-sync/internal/reconcile"
	"github.com/acectf/roster-sync/internal/scorepush"
	"github.com/acectf/roster-sync/internal/status"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
	"github.com/acectf/roster-sync/internal/sync/mocks"
)

func newManager(t *testing.T, opts ...pkgsync.Option) (pkgsync.Manager, *mocks.MockTeamSyncer, *mocks.MockScorePusher) {
	t.Helper()
	ctrl := gomock.NewController(t)
	teams := mocks.NewMockTeamSyncer(ctrl)
	scores := mocks.NewMockScorePusher(ctrl)
	m := pkgsync.NewManager(teams, scores, status.NewTracker(nil, pkgsync.JobTeamSync, pkgsync.JobScoreSync), opts...)
	t.Cleanup(m.Close)
	return m, teams, scores
}

func jobStatus(t *testing.T, m pkgsync.Manager, job string) status.JobStatus {
	t.Helper()
	for _, s := range m.Status() {
		if s.Job == job {
			return s
		}
	}
	t.Fatalf("no status for %s", job)
	return status.JobStatus{}
}

func TestTryRunRecordsOutcome(t *testing.T) {
	t.Parallel()

	m, teams, scores := newManager(t)
	ctx := context.Background()

	teams.EXPECT().FullSync(gomock.Any()).Return(&reconcile.Result{Teams: 3, Created: 1, Errors: 1}, nil)
	report, err := m.TryRun(ctx, pkgsync.JobTeamSync)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Teams.Teams)
	assert.Nil(t, report.Scores)

	s := jobStatus(t, m, pkgsync.JobTeamSync)
	assert.Equal(t, status.SyncPhaseComplete, s.Phase)
	assert.Equal(t, 1, s.Counters["errors"])
	assert.Contains(t, s.Message, "Reconciled 3 teams")

	scores.EXPECT().Run(gomock.Any()).Return(nil, errors.New("push rejected"))
	_, err = m.TryRun(ctx, pkgsync.JobScoreSync)
	require.Error(t, err)

	s = jobStatus(t, m, pkgsync.JobScoreSync)
	assert.Equal(t, status.SyncPhaseFailed, s.Phase)
	assert.Equal(t, "push rejected", s.Message)
	assert.Equal(t, 1, s.AttemptCount)
}

func TestTryRunUnknownJob(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t)
	_, err := m.TryRun(context.Background(), "coffee")
	assert.ErrorIs(t, err, pkgsync.ErrUnknownJob)
}

// blockTeams makes the next FullSync block until the returned release func is called
func blockTeams(teams *mocks.MockTeamSyncer) (started <-chan struct{}, release func()) {
	s := make(chan struct{})
	r := make(chan struct{})
	teams.EXPECT().FullSync(gomock.Any()).DoAndReturn(func(context.Context) (*reconcile.Result, error) {
		close(s)
		<-r
		return &reconcile.Result{}, nil
	})
	return s, func() { close(r) }
}

func TestTryRunDropsOverlappingTrigger(t *testing.T) {
	t.Parallel()

	m, teams, scores := newManager(t)
	ctx := context.Background()
	started, release := blockTeams(teams)

	done := make(chan error, 1)
	go func() {
		_, err := m.TryRun(ctx, pkgsync.JobTeamSync)
		done <- err
	}()
	<-started

	_, err := m.TryRun(ctx, pkgsync.JobTeamSync)
	require.ErrorIs(t, err, pkgsync.ErrBusy)

	// the other job has its own lock
	scores.EXPECT().Run(gomock.Any()).Return(&scorepush.Result{}, nil)
	_, err = m.TryRun(ctx, pkgsync.JobScoreSync)
	require.NoError(t, err)

	release()
	require.NoError(t, <-done)

	s := jobStatus(t, m, pkgsync.JobTeamSync)
	assert.Equal(t, 1, s.SkippedCount)
	assert.Equal(t, status.SyncPhaseComplete, s.Phase)
}

func TestLockedWaitsForRunningPass(t *testing.T) {
	t.Parallel()

	m, teams, _ := newManager(t)
	ctx := context.Background()
	started, release := blockTeams(teams)

	go func() { _, _ = m.TryRun(ctx, pkgsync.JobTeamSync) }()
	<-started

	lockedDone := make(chan error, 1)
	go func() {
		lockedDone <- m.Locked(ctx, pkgsync.JobTeamSync, func(context.Context) error { return nil })
	}()

	select {
	case <-lockedDone:
		t.Fatal("Locked ran while a pass held the lock")
	case <-time.After(50 * time.Millisecond):
	}

	release()
	require.NoError(t, <-lockedDone)
}

func TestLockedTimesOut(t *testing.T) {
	t.Parallel()

	m, teams, _ := newManager(t, pkgsync.WithLockTimeout(20*time.Millisecond))
	ctx := context.Background()
	started, release := blockTeams(teams)
	defer release()

	go func() { _, _ = m.TryRun(ctx, pkgsync.JobTeamSync) }()
	<-started

	called := false
	err := m.Locked(ctx, pkgsync.JobTeamSync, func(context.Context) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, pkgsync.ErrBusy)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, called)
}

func TestLockedPropagatesError(t *testing.T) {
	t.Parallel()

	m, _, _ := newManager(t)
	want := errors.New("not found")
	err := m.Locked(context.Background(), pkgsync.JobTeamSync, func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}

func TestDispatchOutlivesRequestContext(t *testing.T) {
	t.Parallel()

	m, teams, _ := newManager(t)
	ran := make(chan struct{})
	teams.EXPECT().FullSync(gomock.Any()).DoAndReturn(func(ctx context.Context) (*reconcile.Result, error) {
		assert.NoError(t, ctx.Err())
		close(ran)
		return &reconcile.Result{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Dispatch(ctx, pkgsync.JobTeamSync)

	select {
	case <-ran:
	case <-time.After(2 * time.Second):
		t.Fatal("dispatched run never started")
	}
}

func TestCloseCancelsDispatchedRuns(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	teams := mocks.NewMockTeamSyncer(ctrl)
	m := pkgsync.NewManager(teams, mocks.NewMockScorePusher(ctrl), nil)

	started := make(chan struct{})
	teams.EXPECT().FullSync(gomock.Any()).DoAndReturn(func(ctx context.Context) (*reconcile.Result, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	m.Dispatch(context.Background(), pkgsync.JobTeamSync)
	<-started
	m.Close()

	s := jobStatus(t, m, pkgsync.JobTeamSync)
	assert.Equal(t, status.SyncPhaseFailed, s.Phase)
}

func TestPanickingJobIsReleased(t *testing.T) {
	t.Parallel()

	m, teams, _ := newManager(t)
	teams.EXPECT().FullSync(gomock.Any()).DoAndReturn(func(context.Context) (*reconcile.Result, error) {
		panic("nil map")
	})
	teams.EXPECT().FullSync(gomock.Any()).Return(&reconcile.Result{}, nil)

	_, err := m.TryRun(context.Background(), pkgsync.JobTeamSync)
	require.Error(t, err)
	assert.Equal(t, status.SyncPhaseFailed, jobStatus(t, m, pkgsync.JobTeamSync).Phase)

	_, err = m.TryRun(context.Background(), pkgsync.JobTeamSync)
	require.NoError(t, err)
}
