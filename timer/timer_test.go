package timer

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/fortytw2/leaktest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/wake"
	"github.com/tendermint/alarm/wake/mocks"
)

func startManualService(t *testing.T) *wake.ManualService {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	ws := wake.NewManualService(log.TestingLogger())
	require.NoError(t, ws.Start(ctx))
	t.Cleanup(func() { _ = ws.Stop() })
	return ws
}

func newTestTimer(t *testing.T, cfg *config.TimerConfig, ws wake.Service) (*Timer, *clock.Mock) {
	t.Helper()

	clk := clock.NewMock()
	return New(log.TestingLogger(), cfg, ws, WithClock(clk)), clk
}

func sleepAsync(ctx context.Context, tm *Timer, d time.Duration) <-chan error {
	errCh := make(chan error, 1)
	go func() { errCh <- tm.Sleep(ctx, d) }()
	return errCh
}

// sleepers returns the number of callers blocked on the armed cycle.
func sleepers(tm *Timer) int {
	tm.mtx.Lock()
	defer tm.mtx.Unlock()
	if tm.cur == nil {
		return 0
	}
	return tm.cur.sleepers
}

func waitForSleepers(t *testing.T, tm *Timer, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return sleepers(tm) == n },
		time.Second, time.Millisecond, "expected %d sleepers", n)
}

func requireReturned(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(time.Second):
		t.Fatal("sleep did not return")
		return nil
	}
}

func requireBlocked(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		t.Fatalf("sleep returned early: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
}

func armedHandle(t *testing.T, ws *wake.ManualService) wake.Handle {
	t.Helper()
	handles := ws.Armed()
	require.Len(t, handles, 1)
	return handles[0]
}

func TestSleepZeroAndNegative(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	// no calls are expected on the wake service
	ws := mocks.NewService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	require.NoError(t, tm.Sleep(context.Background(), 0))
	require.ErrorIs(t, tm.Sleep(context.Background(), -time.Second), ErrNegativeDuration)
	require.False(t, tm.Armed())
}

func TestSleepReleasedByWake(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	errCh := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	require.True(t, tm.Armed())

	h := armedHandle(t, ws)
	d, ok := ws.Duration(h)
	require.True(t, ok)
	require.Equal(t, time.Second, d)

	requireBlocked(t, errCh)
	require.True(t, ws.Fire(h))
	require.NoError(t, requireReturned(t, errCh))
	require.False(t, tm.Armed())
	require.Zero(t, ws.Pending())
}

func TestSleepCoalescesConcurrentCallers(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	const n = 10

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	errChs := []<-chan error{sleepAsync(context.Background(), tm, 2*time.Second)}
	waitForSleepers(t, tm, 1)
	for i := 1; i < n; i++ {
		errChs = append(errChs, sleepAsync(context.Background(), tm, time.Duration(i)*time.Second))
	}
	waitForSleepers(t, tm, n)

	require.Equal(t, 1, ws.Registrations())
	h := armedHandle(t, ws)
	d, _ := ws.Duration(h)
	require.Equal(t, 2*time.Second, d)

	require.True(t, ws.Fire(h))
	for _, errCh := range errChs {
		require.NoError(t, requireReturned(t, errCh))
	}
	require.False(t, tm.Armed())
}

func TestSleepConcurrentArmersRegisterOnce(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	const n = 50

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	var (
		start = make(chan struct{})
		wg    sync.WaitGroup
		errCh = make(chan error, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			errCh <- tm.Sleep(context.Background(), time.Second)
		}()
	}
	close(start)
	waitForSleepers(t, tm, n)
	require.Equal(t, 1, ws.Registrations())

	require.Equal(t, 1, ws.FireAll())
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}
}

func TestSleepLongerSleeperReturnsWithShorterCycle(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, clk := newTestTimer(t, config.TestTimerConfig(), ws)
	begin := clk.Now()

	short := sleepAsync(context.Background(), tm, 1000*time.Millisecond)
	waitForSleepers(t, tm, 1)
	long := sleepAsync(context.Background(), tm, 5000*time.Millisecond)
	waitForSleepers(t, tm, 2)

	h := armedHandle(t, ws)
	d, _ := ws.Duration(h)
	require.Equal(t, 1000*time.Millisecond, d)

	clk.Add(999 * time.Millisecond)
	ws.Fire(h)

	require.NoError(t, requireReturned(t, short))
	require.NoError(t, requireReturned(t, long))
	require.Less(t, clk.Since(begin), 5000*time.Millisecond)
	require.Equal(t, 1, ws.Registrations())
}

func TestSleepArmsNewCycleAfterRelease(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	for i := 1; i <= 3; i++ {
		errCh := sleepAsync(context.Background(), tm, time.Second)
		waitForSleepers(t, tm, 1)
		require.Equal(t, i, ws.Registrations())

		ws.Fire(armedHandle(t, ws))
		require.NoError(t, requireReturned(t, errCh))
		require.False(t, tm.Armed())
	}
}

func TestSleepFallbackReleasesWithoutWake(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	cfg := config.TestTimerConfig()
	cfg.FallbackGrace = 500 * time.Millisecond

	ws := startManualService(t)
	tm, clk := newTestTimer(t, cfg, ws)

	first := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	second := sleepAsync(context.Background(), tm, time.Minute)
	waitForSleepers(t, tm, 2)

	clk.Add(time.Second)
	requireBlocked(t, first)

	clk.Add(500 * time.Millisecond)
	require.NoError(t, requireReturned(t, first))
	require.NoError(t, requireReturned(t, second))

	require.False(t, tm.Armed())
	// the registration of a released cycle is revoked
	require.Zero(t, ws.Pending())
	require.Empty(t, ws.Armed())
}

func TestSleepRegistrationFailure(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	errBoom := errors.New("boom")

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	ws.FailRegistrations(errBoom)
	err := tm.Sleep(context.Background(), time.Second)
	require.ErrorIs(t, err, ErrRegistrationFailed)
	require.ErrorIs(t, err, errBoom)
	require.False(t, tm.Armed())

	ws.FailRegistrations(nil)
	errCh := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, errCh))
}

func TestSleepInterruptedJoiner(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	armer := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)

	ctx, cancel := context.WithCancel(context.Background())
	joiner := sleepAsync(ctx, tm, time.Second)
	waitForSleepers(t, tm, 2)

	cancel()
	err := requireReturned(t, joiner)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.Canceled)

	waitForSleepers(t, tm, 1)
	require.True(t, tm.Armed())
	requireBlocked(t, armer)

	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, armer))
}

func TestSleepInterruptedArmerKeepsCycleForJoiners(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	ctx, cancel := context.WithCancel(context.Background())
	armer := sleepAsync(ctx, tm, time.Second)
	waitForSleepers(t, tm, 1)
	joiner := sleepAsync(context.Background(), tm, time.Minute)
	waitForSleepers(t, tm, 2)

	cancel()
	require.ErrorIs(t, requireReturned(t, armer), ErrInterrupted)
	waitForSleepers(t, tm, 1)
	require.True(t, tm.Armed())
	require.Equal(t, 1, ws.Pending())

	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, joiner))
	require.False(t, tm.Armed())
}

func TestSleepInterruptedLastSleeperCancelsCycle(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := startManualService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := tm.Sleep(ctx, time.Minute)
	require.ErrorIs(t, err, ErrInterrupted)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// nothing is left registered with the wake service
	require.False(t, tm.Armed())
	require.Zero(t, ws.Pending())
	require.Empty(t, ws.Armed())

	errCh := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	require.Equal(t, 2, ws.Registrations())

	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, errCh))
	require.False(t, tm.Armed())
}

func TestSleepCanceledContextDoesNotArm(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ws := mocks.NewService(t)
	tm, _ := newTestTimer(t, config.TestTimerConfig(), ws)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, tm.Sleep(ctx, time.Second), ErrInterrupted)
	require.False(t, tm.Armed())
}

func TestSleepIgnoresStaleWake(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	var (
		h1 = wake.NewHandle("test", 1)
		h2 = wake.NewHandle("test", 2)

		cbMtx sync.Mutex
		cb    wake.Callback
	)
	capture := func(args mock.Arguments) {
		cbMtx.Lock()
		defer cbMtx.Unlock()
		cb = args.Get(1).(wake.Callback)
	}
	deliver := func(h wake.Handle) {
		cbMtx.Lock()
		f := cb
		cbMtx.Unlock()
		f(h)
	}

	ws := mocks.NewService(t)
	ws.On("Register", time.Second, mock.Anything).Return(h1, nil).Run(capture).Once()
	ws.On("Register", 2*time.Second, mock.Anything).Return(h2, nil).Run(capture).Once()
	ws.On("Cancel", h1).Return(nil).Once()
	ws.On("Cancel", h2).Return(nil).Once()

	tm, clk := newTestTimer(t, config.TestTimerConfig(), ws)

	// first cycle is released by its fallback; its wake arrives late
	errCh := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	clk.Add(time.Second + config.DefaultTimerConfig().FallbackGrace)
	require.NoError(t, requireReturned(t, errCh))

	deliver(h1)
	require.False(t, tm.Armed())

	errCh = sleepAsync(context.Background(), tm, 2*time.Second)
	waitForSleepers(t, tm, 1)

	deliver(h1)
	require.True(t, tm.Armed())
	requireBlocked(t, errCh)

	deliver(h2)
	require.NoError(t, requireReturned(t, errCh))
	require.False(t, tm.Armed())
}

// delayedAlarm is an alarm whose fire call can be held back after it fired.
type delayedAlarm struct {
	handle wake.Handle
	fire   func()
	done   atomic.Bool
}

func (a *delayedAlarm) Stop() bool { return a.done.CompareAndSwap(false, true) }

func TestSleepIgnoresWakeDeliveredAfterCancel(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	var (
		mtx    sync.Mutex
		alarms []*delayedAlarm
	)
	ws := wake.NewAlarmService(log.TestingLogger(), "delayed", "test",
		func(h wake.Handle, _ time.Duration, fire func()) (wake.Alarm, error) {
			mtx.Lock()
			defer mtx.Unlock()
			a := &delayedAlarm{handle: h, fire: fire}
			alarms = append(alarms, a)
			return a, nil
		})
	require.NoError(t, ws.Start(context.Background()))
	t.Cleanup(func() { _ = ws.Stop() })
	alarm := func(i int) *delayedAlarm {
		mtx.Lock()
		defer mtx.Unlock()
		require.Greater(t, len(alarms), i)
		return alarms[i]
	}

	cfg := config.TestTimerConfig()
	cfg.FallbackGrace = 0
	tm, clk := newTestTimer(t, cfg, ws)

	// the alarm fires, but the fallback releases the cycle before the wake
	// service gets to deliver it
	errCh := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	first := alarm(0)
	first.done.Store(true)
	clk.Add(time.Second)
	require.NoError(t, requireReturned(t, errCh))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh = sleepAsync(ctx, tm, time.Hour)
	waitForSleepers(t, tm, 1)
	require.NotEqual(t, first.handle, alarm(1).handle)

	first.fire()
	requireBlocked(t, errCh)
	require.True(t, tm.Armed())

	cancel()
	require.ErrorIs(t, requireReturned(t, errCh), ErrInterrupted)
	require.False(t, tm.Armed())
}

func TestSleepStrictDurations(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	// keep the fallback out of the way while the clock is advanced
	cfg := config.TestTimerConfig()
	cfg.StrictDurations = true
	cfg.FallbackGrace = time.Minute

	ws := startManualService(t)
	tm, clk := newTestTimer(t, cfg, ws)

	short := sleepAsync(context.Background(), tm, time.Second)
	waitForSleepers(t, tm, 1)
	long := sleepAsync(context.Background(), tm, 5*time.Second)
	waitForSleepers(t, tm, 2)

	clk.Add(time.Second)
	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, short))

	// the longer sleeper arms a cycle for what is left of its duration
	require.Eventually(t, func() bool { return ws.Registrations() == 2 }, time.Second, time.Millisecond)
	waitForSleepers(t, tm, 1)
	d, ok := ws.Duration(armedHandle(t, ws))
	require.True(t, ok)
	require.Equal(t, 4*time.Second, d)
	requireBlocked(t, long)

	ws.Fire(armedHandle(t, ws))
	require.NoError(t, requireReturned(t, long))
	require.False(t, tm.Armed())
}

func TestSleepWithMonotonicAlarms(t *testing.T) {
	t.Cleanup(leaktest.Check(t))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := wake.NewAlarmService(log.TestingLogger(), config.WakeBackendMonotonic, "test",
		wake.MonotonicAlarms(clock.New()))
	require.NoError(t, ws.Start(ctx))
	t.Cleanup(func() { _ = ws.Stop() })

	cfg := config.TestTimerConfig()
	cfg.FallbackGrace = time.Second
	tm := New(log.TestingLogger(), cfg, ws)

	const d = 50 * time.Millisecond

	begin := time.Now()
	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, tm.Sleep(ctx, d))
		}()
	}
	wg.Wait()
	require.GreaterOrEqual(t, time.Since(begin), d)
	require.False(t, tm.Armed())

	begin = time.Now()
	require.NoError(t, tm.Sleep(ctx, d))
	require.GreaterOrEqual(t, time.Since(begin), d)
}
