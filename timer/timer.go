/*
Package timer implements a sleep that survives host suspend.

Runtime timers stop counting while the host is suspended, so a plain
time.Sleep can oversleep by however long the host slept. Timer hands the
actual wake-up to a wake.Service, which keeps counting across suspend, and
blocks callers until the service calls back.

Concurrent sleepers are coalesced: while a cycle is armed with the wake
service, further callers join it instead of registering alarms of their own,
and are all released together when it fires. A caller that joins an armed
cycle therefore returns with that cycle, even when it asked for a longer
duration, unless strict durations are enabled.

Every cycle also arms a local fallback for the duration it was registered
with, so a wake service that never calls back cannot strand its sleepers.
*/
package timer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/wake"
)

const (
	releaseWake      = "wake"
	releaseFallback  = "fallback"
	releaseAbandoned = "abandoned"
)

// cycle is one arming of the wake service and every sleeper blocked on it.
type cycle struct {
	seq      uint64
	handle   wake.Handle
	dur      time.Duration
	sleepers int

	// done is closed, under Timer.mtx, when the cycle is released.
	done     chan struct{}
	fallback *clock.Timer
}

// Timer is a coalescing sleep timer. It is safe for concurrent use and can be
// reused for any number of cycles. The zero value is not usable; see New.
type Timer struct {
	logger  log.Logger
	wake    wake.Service
	clock   clock.Clock
	metrics *Metrics

	fallbackGrace time.Duration
	strict        bool

	mtx sync.Mutex
	cur *cycle // non-nil iff a cycle is armed
	seq uint64
}

// Option sets an optional parameter on the Timer.
type Option func(*Timer)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) Option {
	return func(t *Timer) { t.metrics = metrics }
}

// WithClock sets the clock driving the local fallback and strict-duration
// bookkeeping.
func WithClock(clk clock.Clock) Option {
	return func(t *Timer) { t.clock = clk }
}

// New returns a Timer that arms cycles with ws. The wake service must not
// invoke callbacks from within Register.
func New(logger log.Logger, cfg *config.TimerConfig, ws wake.Service, options ...Option) *Timer {
	if logger == nil {
		logger = log.NewNopLogger()
	}

	t := &Timer{
		logger:        logger.With("module", "timer"),
		wake:          ws,
		clock:         clock.New(),
		metrics:       NopMetrics(),
		fallbackGrace: cfg.FallbackGrace,
		strict:        cfg.StrictDurations,
	}

	for _, option := range options {
		option(t)
	}
	return t
}

// Sleep blocks until the cycle the caller armed or joined is released, or
// until ctx ends.
//
// A zero duration returns immediately. If no cycle is armed the caller arms
// one for d; otherwise it joins the armed cycle and returns when that cycle is
// released. Sleep returns nil when released, whether by the wake service or by
// the local fallback, an error wrapping ErrInterrupted when ctx ends first,
// and an error wrapping ErrRegistrationFailed when the wake service refused to
// arm a new cycle.
func (t *Timer) Sleep(ctx context.Context, d time.Duration) error {
	if d < 0 {
		return fmt.Errorf("%w: %v", ErrNegativeDuration, d)
	}
	if d == 0 {
		return nil
	}

	// wall-clock deadline, see strict durations below
	deadline := t.clock.Now().Round(0).Add(d)

	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %w", ErrInterrupted, err)
		}

		c, err := t.join(d)
		if err != nil {
			return err
		}

		if err := t.wait(ctx, c); err != nil {
			return err
		}

		if !t.strict {
			return nil
		}

		remaining := deadline.Sub(t.clock.Now())
		if remaining <= 0 {
			return nil
		}

		t.logger.Debug("released before requested duration; sleeping again",
			"cycle", c.seq, "remaining", remaining)
		d = remaining
	}
}

// Armed reports whether a cycle is currently armed with the wake service.
func (t *Timer) Armed() bool {
	t.mtx.Lock()
	defer t.mtx.Unlock()
	return t.cur != nil
}

// join adds the caller to the armed cycle, arming a new one for d if there is
// none. Checking for and arming a cycle happen under one lock, so a failed
// registration is never observable as an armed cycle.
func (t *Timer) join(d time.Duration) (*cycle, error) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if c := t.cur; c != nil {
		c.sleepers++
		t.metrics.Coalesced.Add(1)
		t.metrics.Sleepers.Add(1)
		t.logger.Debug("joined armed cycle", "cycle", c.seq, "handle", c.handle, "dur", d, "cycle_dur", c.dur)
		return c, nil
	}

	h, err := t.wake.Register(d, t.onWake)
	if err != nil {
		t.metrics.RegistrationFailures.Add(1)
		t.logger.Error("failed to arm sleep cycle", "dur", d, "err", err)
		return nil, fmt.Errorf("%w: %w", ErrRegistrationFailed, err)
	}

	t.seq++
	c := &cycle{
		seq:      t.seq,
		handle:   h,
		dur:      d,
		sleepers: 1,
		done:     make(chan struct{}),
	}
	c.fallback = t.clock.AfterFunc(d+t.fallbackGrace, func() { t.release(c, releaseFallback) })
	t.cur = c

	t.metrics.Arms.Add(1)
	t.metrics.Sleepers.Add(1)
	t.logger.Debug("armed sleep cycle", "cycle", c.seq, "handle", h, "dur", d)

	return c, nil
}

func (t *Timer) wait(ctx context.Context, c *cycle) error {
	select {
	case <-c.done:
		t.metrics.Sleepers.Add(-1)
		return nil

	case <-ctx.Done():
		// prefer a release that raced with the interruption
		select {
		case <-c.done:
			t.metrics.Sleepers.Add(-1)
			return nil
		default:
		}

		t.leave(c)
		t.metrics.Interruptions.Add(1)
		t.metrics.Sleepers.Add(-1)
		return fmt.Errorf("%w: %w", ErrInterrupted, ctx.Err())
	}
}

// leave drops an interrupted sleeper from c. The cycle stays armed while
// other sleepers still wait on it; the last one to leave cancels it.
func (t *Timer) leave(c *cycle) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	c.sleepers--
	if t.cur == c && c.sleepers == 0 {
		t.releaseLocked(c, releaseAbandoned)
	}
}

// onWake is the wake service callback.
func (t *Timer) onWake(h wake.Handle) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	c := t.cur
	if c == nil || c.handle != h {
		t.logger.Debug("ignoring wake for released cycle", "handle", h)
		return
	}
	t.releaseLocked(c, releaseWake)
}

// release is the local fallback of c.
func (t *Timer) release(c *cycle, reason string) {
	t.mtx.Lock()
	defer t.mtx.Unlock()

	if t.cur != c {
		return
	}
	t.releaseLocked(c, reason)
}

// releaseLocked disarms c and releases all of its sleepers. Clearing the armed
// cycle and closing done happen under t.mtx, so any Sleep that takes the lock
// afterwards arms a new cycle instead of joining this one.
func (t *Timer) releaseLocked(c *cycle, reason string) {
	t.cur = nil
	c.fallback.Stop()

	// acknowledges a fired registration, revokes one that has not fired
	if err := t.wake.Cancel(c.handle); err != nil {
		t.logger.Error("failed to cancel wake registration", "handle", c.handle, "err", err)
	}

	close(c.done)

	t.metrics.Releases.With("reason", reason).Add(1)
	switch reason {
	case releaseFallback:
		t.logger.Info("degraded wake: released sleep cycle without a wake alarm",
			"cycle", c.seq, "handle", c.handle, "sleepers", c.sleepers)
	case releaseAbandoned:
		t.logger.Debug("canceled sleep cycle; all sleepers interrupted", "cycle", c.seq, "handle", c.handle)
	default:
		t.logger.Debug("released sleep cycle", "cycle", c.seq, "handle", c.handle, "sleepers", c.sleepers)
	}
}
