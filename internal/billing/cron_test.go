package billing

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/congo-pay/usage_billing/internal/lock"
	"github.com/congo-pay/usage_billing/internal/logging"
)

type blockingSweeper struct {
	calls   atomic.Int32
	release chan struct{}
	entered chan struct{}
	err     error
}

func newBlockingSweeper() *blockingSweeper {
	return &blockingSweeper{release: make(chan struct{}), entered: make(chan struct{}, 16)}
}

func (s *blockingSweeper) Sweep(ctx context.Context) (SweepReport, error) {
	s.calls.Add(1)
	s.entered <- struct{}{}
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return SweepReport{EventsBilled: 1}, s.err
}

type countingSweeper struct {
	calls atomic.Int32
}

func (s *countingSweeper) Sweep(context.Context) (SweepReport, error) {
	s.calls.Add(1)
	return SweepReport{}, nil
}

func TestCronFollowerNeverSweeps(t *testing.T) {
	locks := lock.NewMemory()
	ctx := context.Background()
	ok, err := locks.TryAcquire(ctx, "billing_cron", "other-instance")
	require.NoError(t, err)
	require.True(t, ok)

	sweeper := &countingSweeper{}
	cron := NewCron(sweeper, locks, CronConfig{Interval: 5 * time.Millisecond, Owner: "me"}, logging.Discard(), nil)

	leader, err := cron.Start(ctx)
	require.NoError(t, err)
	require.False(t, leader)
	require.False(t, cron.IsLeader())

	_, err = cron.RunOnce(ctx)
	require.ErrorIs(t, err, ErrNotLeader)

	time.Sleep(30 * time.Millisecond)
	require.Zero(t, sweeper.calls.Load())
	require.NoError(t, cron.Stop(ctx))

	owner, held := locks.Holder("billing_cron")
	require.True(t, held)
	require.Equal(t, "other-instance", owner, "a follower must not release the leader's lock")
}

func TestCronSkipsOverlappingTick(t *testing.T) {
	ctx := context.Background()
	sweeper := newBlockingSweeper()
	cron := NewCron(sweeper, lock.NewMemory(), CronConfig{Interval: time.Hour, Owner: "me"}, logging.Discard(), nil)

	leader, err := cron.Start(ctx)
	require.NoError(t, err)
	require.True(t, leader)

	done := make(chan error, 1)
	go func() {
		_, err := cron.RunOnce(ctx)
		done <- err
	}()
	<-sweeper.entered
	require.Equal(t, CronRunning, cron.State())

	_, err = cron.RunOnce(ctx)
	require.ErrorIs(t, err, ErrSweepInProgress)

	close(sweeper.release)
	require.NoError(t, <-done)
	require.Equal(t, CronIdle, cron.State())
	require.Equal(t, int32(1), sweeper.calls.Load())
	require.NoError(t, cron.Stop(ctx))
}

func TestCronStateResetsAfterError(t *testing.T) {
	ctx := context.Background()
	sweeper := newBlockingSweeper()
	sweeper.err = errors.New("listing failed")
	close(sweeper.release)
	cron := NewCron(sweeper, lock.NewMemory(), CronConfig{Interval: time.Hour}, logging.Discard(), nil)

	_, err := cron.Start(ctx)
	require.NoError(t, err)

	_, err = cron.RunOnce(ctx)
	require.EqualError(t, err, "listing failed")
	require.Equal(t, CronIdle, cron.State())

	_, err = cron.RunOnce(ctx)
	require.EqualError(t, err, "listing failed", "a failed sweep must not leave the cron stuck")
	require.NoError(t, cron.Stop(ctx))
}

func TestCronTicksAndReleasesLockOnStop(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewMemory()
	sweeper := &countingSweeper{}
	cron := NewCron(sweeper, locks, CronConfig{Interval: 5 * time.Millisecond, LockName: "billing_cron", Owner: "me"}, logging.Discard(), nil)

	leader, err := cron.Start(ctx)
	require.NoError(t, err)
	require.True(t, leader)

	require.Eventually(t, func() bool { return sweeper.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	require.NoError(t, cron.Stop(ctx))
	_, held := locks.Holder("billing_cron")
	require.False(t, held)
	require.False(t, cron.IsLeader())

	calls := sweeper.calls.Load()
	time.Sleep(30 * time.Millisecond)
	require.Equal(t, calls, sweeper.calls.Load(), "no ticks after Stop")
}

func TestCronDrivesRealSweep(t *testing.T) {
	f := newFixture(t)
	cust := f.customer(t, 1_000)
	prod := f.product(t, 27)
	f.use(t, cust, prod, 10)

	cron := NewCron(f.svc, lock.NewMemory(), CronConfig{}, logging.Discard(), nil)
	_, err := cron.Start(f.ctx)
	require.NoError(t, err)
	defer cron.Stop(f.ctx) // nolint:errcheck

	report, err := cron.RunOnce(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 1, report.EventsBilled)
	require.Equal(t, int64(730), f.balance(t, cust))
}

func TestCronStopWaitsForManualRun(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewMemory()
	sweeper := newBlockingSweeper()
	cron := NewCron(sweeper, locks, CronConfig{Interval: time.Hour, LockName: "billing_cron", Owner: "me"}, logging.Discard(), nil)
	_, err := cron.Start(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := cron.RunOnce(ctx)
		done <- err
	}()
	<-sweeper.entered

	stopped := make(chan error, 1)
	go func() { stopped <- cron.Stop(ctx) }()

	require.Eventually(t, func() bool { return !cron.IsLeader() }, time.Second, time.Millisecond)
	_, err = cron.RunOnce(ctx)
	require.ErrorIs(t, err, ErrNotLeader, "no new runs once stopping")

	select {
	case <-stopped:
		t.Fatal("Stop returned while a sweep was running")
	case <-time.After(30 * time.Millisecond):
	}
	_, held := locks.Holder("billing_cron")
	require.True(t, held)

	close(sweeper.release)
	require.NoError(t, <-done)
	require.NoError(t, <-stopped)
	_, held = locks.Holder("billing_cron")
	require.False(t, held)
}

func TestCronStopKeepsLockWhenSweepOutlivesDeadline(t *testing.T) {
	ctx := context.Background()
	locks := lock.NewMemory()
	sweeper := newBlockingSweeper()
	defer close(sweeper.release)
	cron := NewCron(sweeper, locks, CronConfig{Interval: time.Hour, LockName: "billing_cron", Owner: "me"}, logging.Discard(), nil)
	_, err := cron.Start(ctx)
	require.NoError(t, err)

	go func() { _, _ = cron.RunOnce(ctx) }()
	<-sweeper.entered

	stopCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = cron.Stop(stopCtx)
	require.ErrorIs(t, err, ErrLockRetained)
	require.False(t, cron.IsLeader())

	owner, held := locks.Holder("billing_cron")
	require.True(t, held, "another instance must not start billing next to the running sweep")
	require.Equal(t, "me", owner)
}
