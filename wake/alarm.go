package wake

import (
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	alarmArmed uint32 = iota
	alarmFired
	alarmStopped
)

// oneShot tracks whether an alarm fired or was stopped, whichever happens
// first.
type oneShot struct {
	state uint32
}

func (o *oneShot) trigger(fire func()) {
	if atomic.CompareAndSwapUint32(&o.state, alarmArmed, alarmFired) {
		fire()
	}
}

func (o *oneShot) stop() bool {
	return atomic.CompareAndSwapUint32(&o.state, alarmArmed, alarmStopped)
}

func (o *oneShot) armed() bool {
	return atomic.LoadUint32(&o.state) == alarmArmed
}

type monotonicAlarm struct {
	oneShot
	timer *clock.Timer
}

func (a *monotonicAlarm) Stop() bool {
	if !a.stop() {
		return false
	}
	a.timer.Stop()
	return true
}

// MonotonicAlarms returns an AlarmFunc backed by runtime timers of clk. The
// runtime's monotonic clock does not advance while the host is suspended, so
// these alarms fire late after a suspend.
func MonotonicAlarms(clk clock.Clock) AlarmFunc {
	return func(_ Handle, d time.Duration, fire func()) (Alarm, error) {
		a := &monotonicAlarm{}
		a.timer = clk.AfterFunc(d, func() { a.trigger(fire) })
		return a, nil
	}
}

type wallclockAlarm struct {
	oneShot
	stopCh chan struct{}
}

func (a *wallclockAlarm) Stop() bool {
	if !a.stop() {
		return false
	}
	close(a.stopCh)
	return true
}

// WallclockAlarms returns an AlarmFunc whose alarms fire once the wall clock
// of clk passes the deadline. A monotonic timer gives a precise wake-up when
// the host stays awake; a ticker re-checks the wall clock every interval so
// that time spent suspended is counted too.
func WallclockAlarms(clk clock.Clock, interval time.Duration) AlarmFunc {
	return func(_ Handle, d time.Duration, fire func()) (Alarm, error) {
		// Round(0) strips the monotonic reading, so comparisons against the
		// deadline use wall-clock time, which keeps advancing during suspend.
		deadline := clk.Now().Round(0).Add(d)

		a := &wallclockAlarm{stopCh: make(chan struct{})}

		// Both are created before the goroutine starts so that the deadline
		// is relative to the moment of registration.
		timer := clk.Timer(d)
		ticker := clk.Ticker(interval)

		go func() {
			defer timer.Stop()
			defer ticker.Stop()

			for {
				select {
				case <-a.stopCh:
					return
				case <-timer.C:
					a.trigger(fire)
					return
				case <-ticker.C:
					if clk.Now().Before(deadline) {
						continue
					}
					a.trigger(fire)
					return
				}
			}
		}()

		return a, nil
	}
}
