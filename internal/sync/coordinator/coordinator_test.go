package coordinator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/acectf/roster-sync/internal/config"
	pkgsync "github.com/acectf/roster-sync/internal/sync"
	"github.com/acectf/roster-sync/internal/sync/mocks"
)

// counter is a TryRun action that counts calls per job
type counter struct {
	team, score atomic.Int32
}

func (c *counter) tryRun(_ context.Context, job string) (*pkgsync.Report, error) {
	switch job {
	case pkgsync.JobTeamSync:
		c.team.Add(1)
	case pkgsync.JobScoreSync:
		c.score.Add(1)
	}
	return &pkgsync.Report{Job: job}, nil
}

func startCoordinator(t *testing.T, c Coordinator) (stop func()) {
	t.Helper()
	errCh := make(chan error, 1)
	go func() { errCh <- c.Start(context.Background()) }()
	return func() {
		require.NoError(t, c.Stop())
		require.NoError(t, <-errCh)
	}
}

func TestRunsAtStartThenOnEachTick(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)
	clock := clockwork.NewFakeClock()
	calls := &counter{}
	manager.EXPECT().TryRun(gomock.Any(), gomock.Any()).DoAndReturn(calls.tryRun).AnyTimes()

	coord := New(manager, []Schedule{
		{Job: pkgsync.JobTeamSync, Interval: time.Minute},
		{Job: pkgsync.JobScoreSync, Interval: 30 * time.Second},
	}, WithClock(clock))
	stop := startCoordinator(t, coord)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 2))
	assert.Equal(t, int32(1), calls.team.Load())
	assert.Equal(t, int32(1), calls.score.Load())

	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool { return calls.score.Load() == 2 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(1), calls.team.Load())

	clock.Advance(30 * time.Second)
	assert.Eventually(t, func() bool {
		return calls.score.Load() == 3 && calls.team.Load() == 2
	}, time.Second, 5*time.Millisecond)
}

func TestBusyAndFailedRunsDoNotStopTheLoop(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)
	clock := clockwork.NewFakeClock()

	var n atomic.Int32
	manager.EXPECT().TryRun(gomock.Any(), pkgsync.JobTeamSync).DoAndReturn(
		func(context.Context, string) (*pkgsync.Report, error) {
			switch n.Add(1) {
			case 1:
				return nil, pkgsync.ErrBusy
			case 2:
				return nil, errors.New("registration service down")
			default:
				return &pkgsync.Report{}, nil
			}
		}).AnyTimes()

	stop := startCoordinator(t, New(manager, []Schedule{{Job: pkgsync.JobTeamSync, Interval: time.Minute}}, WithClock(clock)))
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for want := int32(2); want <= 3; want++ {
		require.NoError(t, clock.BlockUntilContext(ctx, 1))
		clock.Advance(time.Minute)
		assert.Eventually(t, func() bool { return n.Load() == want }, time.Second, 5*time.Millisecond)
	}
}

func TestStopWithoutStart(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	coord := New(mocks.NewMockManager(ctrl), nil)
	assert.NoError(t, coord.Stop())
}

func TestStartTwice(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	manager := mocks.NewMockManager(ctrl)
	manager.EXPECT().TryRun(gomock.Any(), gomock.Any()).Return(&pkgsync.Report{}, nil).AnyTimes()
	clock := clockwork.NewFakeClock()

	coord := New(manager, []Schedule{{Job: pkgsync.JobScoreSync, Interval: time.Second}}, WithClock(clock))
	stop := startCoordinator(t, coord)
	defer stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	assert.Error(t, coord.Start(context.Background()))
}

func TestSchedulesFromConfig(t *testing.T) {
	t.Parallel()

	got := SchedulesFromConfig(&config.SyncConfig{TeamInterval: "2m"})
	assert.Equal(t, []Schedule{
		{Job: pkgsync.JobTeamSync, Interval: 2 * time.Minute},
		{Job: pkgsync.JobScoreSync, Interval: 30 * time.Second},
	}, got)
}
