package coordinator

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/jonboulle/clockwork"

	pkgsync "github.com/acectf/roster-sync/internal/sync"
)

// Coordinator drives the periodic sync jobs
type Coordinator interface {
	// Start runs every job once and then on its interval.
	// It blocks until ctx is cancelled or Stop is called.
	Start(ctx context.Context) error

	// Stop cancels the loops and waits for Start to return
	Stop() error
}

// Option configures the coordinator
type Option func(*defaultCoordinator)

// WithClock sets the clock used for tickers
func WithClock(clock clockwork.Clock) Option {
	return func(c *defaultCoordinator) {
		c.clock = clock
	}
}

type defaultCoordinator struct {
	manager   pkgsync.Manager
	schedules []Schedule
	clock     clockwork.Clock

	mu         sync.Mutex
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// New creates a coordinator for the given schedules
func New(manager pkgsync.Manager, schedules []Schedule, opts ...Option) Coordinator {
	c := &defaultCoordinator{
		manager:   manager,
		schedules: schedules,
		clock:     clockwork.NewRealClock(),
		done:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start implements Coordinator
func (c *defaultCoordinator) Start(ctx context.Context) error {
	coordCtx, cancel := context.WithCancel(ctx)
	c.mu.Lock()
	if c.cancelFunc != nil {
		c.mu.Unlock()
		cancel()
		return errors.New("coordinator already started")
	}
	c.cancelFunc = cancel
	c.mu.Unlock()

	defer func() {
		close(c.done)
		slog.Info("Sync coordinator stopped")
	}()

	slog.Info("Starting sync coordinator", "jobs", len(c.schedules))

	var wg sync.WaitGroup
	for _, s := range c.schedules {
		if s.Interval <= 0 {
			slog.Warn("Ignoring job with non-positive interval", "job", s.Job, "interval", s.Interval)
			continue
		}
		wg.Add(1)
		go func(s Schedule) {
			defer wg.Done()
			c.loop(coordCtx, s)
		}(s)
	}
	wg.Wait()
	return nil
}

func (c *defaultCoordinator) loop(ctx context.Context, s Schedule) {
	slog.Info("Scheduling sync job", "job", s.Job, "interval", s.Interval)

	c.runOnce(ctx, s.Job)

	ticker := c.clock.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.Chan():
			c.runOnce(ctx, s.Job)
		case <-ctx.Done():
			return
		}
	}
}

func (c *defaultCoordinator) runOnce(ctx context.Context, job string) {
	if ctx.Err() != nil {
		return
	}
	if _, err := c.manager.TryRun(ctx, job); err != nil && !errors.Is(err, pkgsync.ErrBusy) {
		slog.DebugContext(ctx, "Scheduled run failed, next tick will retry", "job", job)
	}
}

// Stop implements Coordinator
func (c *defaultCoordinator) Stop() error {
	c.mu.Lock()
	cancel := c.cancelFunc
	c.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping sync coordinator")
		cancel()
		<-c.done
	}
	return nil
}
