package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/congo-pay/usage_billing/internal/lock"
	"github.com/congo-pay/usage_billing/internal/metrics"
)

var (
	// ErrNotLeader is returned by RunOnce on an instance that does not hold the cron lock.
	ErrNotLeader = errors.New("billing cron: not the leader")
	// ErrSweepInProgress is returned when a tick finds a sweep still running.
	ErrSweepInProgress = errors.New("billing cron: sweep already running")
	// ErrLockRetained is returned by Stop when a sweep outlived the shutdown
	// deadline and the lock row was left in place.
	ErrLockRetained = errors.New("billing cron: lock retained, sweep still running")
)

const (
	defaultCronInterval = time.Minute
	defaultCronLockName = "billing_cron"
)

// CronState is the explicit execution state of the cron.
type CronState int32

const (
	CronIdle CronState = iota
	CronRunning
)

func (s CronState) String() string {
	if s == CronRunning {
		return "running"
	}
	return "idle"
}

// Sweeper runs one billing sweep.
type Sweeper interface {
	Sweep(ctx context.Context) (SweepReport, error)
}

// CronConfig configures the periodic sweep.
type CronConfig struct {
	Interval time.Duration
	LockName string
	Owner    string
}

func (c CronConfig) withDefaults() CronConfig {
	if c.Interval <= 0 {
		c.Interval = defaultCronInterval
	}
	if c.LockName == "" {
		c.LockName = defaultCronLockName
	}
	if c.Owner == "" {
		c.Owner = lock.DefaultOwner()
	}
	return c
}

// Cron triggers Sweep on a fixed interval on the single instance holding the
// leader lock. Ticks that arrive while a sweep is running are dropped.
type Cron struct {
	sweeper Sweeper
	locker  lock.Locker
	cfg     CronConfig
	logger  *slog.Logger
	metrics *metrics.Billing

	state  atomic.Int32
	leader atomic.Bool

	mu      sync.Mutex
	started bool
	stopCh  chan struct{}
	loopWG  sync.WaitGroup
	ticksWG sync.WaitGroup
}

func NewCron(sweeper Sweeper, locker lock.Locker, cfg CronConfig, logger *slog.Logger, m *metrics.Billing) *Cron {
	return &Cron{
		sweeper: sweeper,
		locker:  locker,
		cfg:     cfg.withDefaults(),
		logger:  logger.With("component", "billing_cron"),
		metrics: m,
	}
}

// Start tries to become leader and, on success, starts the ticker loop. It
// returns whether this instance is the leader. Followers never sweep.
func (c *Cron) Start(ctx context.Context) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return c.leader.Load(), nil
	}

	acquired, err := c.locker.TryAcquire(ctx, c.cfg.LockName, c.cfg.Owner)
	if err != nil {
		return false, err
	}
	c.metrics.SetLeader(acquired)
	if !acquired {
		c.logger.Info("billing cron lock held elsewhere, running as follower", "lock", c.cfg.LockName)
		return false, nil
	}

	c.leader.Store(true)
	c.started = true
	c.stopCh = make(chan struct{})
	c.logger.Info("billing cron leader elected", "lock", c.cfg.LockName, "owner", c.cfg.Owner, "interval", c.cfg.Interval)

	c.loopWG.Add(1)
	go c.loop(ctx, c.stopCh)
	return true, nil
}

func (c *Cron) loop(ctx context.Context, stop <-chan struct{}) {
	defer c.loopWG.Done()
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			c.ticksWG.Add(1)
			go func() {
				defer c.ticksWG.Done()
				c.tick(ctx)
			}()
		}
	}
}

func (c *Cron) tick(ctx context.Context) {
	report, err := c.RunOnce(ctx)
	switch {
	case errors.Is(err, ErrSweepInProgress):
		c.logger.Warn("billing sweep still running, tick skipped")
	case err != nil:
		c.logger.Error("billing sweep failed", "error", err)
	case report.EventsBilled > 0:
		c.logger.Info("billing sweep billed usage", "events_billed", report.EventsBilled)
	}
}

// RunOnce performs a sweep now if this instance is the leader and no sweep is
// running. The running state is reset on every exit path.
func (c *Cron) RunOnce(ctx context.Context) (SweepReport, error) {
	if !c.leader.Load() {
		return SweepReport{}, ErrNotLeader
	}
	if !c.state.CompareAndSwap(int32(CronIdle), int32(CronRunning)) {
		c.metrics.SweepSkipped()
		return SweepReport{}, ErrSweepInProgress
	}
	defer c.state.Store(int32(CronIdle))

	return c.sweeper.Sweep(ctx)
}

// State returns the current execution state.
func (c *Cron) State() CronState {
	return CronState(c.state.Load())
}

// IsLeader reports whether this instance holds the cron lock.
func (c *Cron) IsLeader() bool {
	return c.leader.Load()
}

// Stop halts the ticker, waits for any running sweep and releases the lock.
// If ctx ends while a sweep is still running the lock is kept, so no other
// instance can start billing next to it, and ErrLockRetained is returned.
func (c *Cron) Stop(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.started {
		return nil
	}
	// Manual runs are refused from here on.
	c.leader.Store(false)
	close(c.stopCh)
	c.loopWG.Wait()

	c.started = false
	c.metrics.SetLeader(false)
	if err := c.waitIdle(ctx); err != nil {
		c.logger.Error("billing sweep still running at shutdown, keeping cron lock",
			"lock", c.cfg.LockName, "owner", c.cfg.Owner, "error", err)
		return fmt.Errorf("%w: %v", ErrLockRetained, err)
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := c.locker.Release(releaseCtx, c.cfg.LockName, c.cfg.Owner); err != nil {
		return err
	}
	c.logger.Info("billing cron lock released", "lock", c.cfg.LockName)
	return nil
}

// waitIdle blocks until scheduled ticks have returned and no manual run is in
// progress.
func (c *Cron) waitIdle(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.ticksWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	poll := time.NewTicker(10 * time.Millisecond)
	defer poll.Stop()
	for c.State() == CronRunning {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-poll.C:
		}
	}
	return nil
}
