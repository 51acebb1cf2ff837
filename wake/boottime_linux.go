//go:build linux

package wake

import (
	"errors"
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"

	"github.com/tendermint/alarm/libs/log"
)

type boottimeAlarm struct {
	oneShot
	f *os.File
}

func (a *boottimeAlarm) Stop() bool {
	if !a.stop() {
		return false
	}
	// Closing the file unblocks the pending read.
	_ = a.f.Close()
	return true
}

func (a *boottimeAlarm) wait(fire func()) {
	defer a.f.Close()

	// A readable timerfd yields the 8-byte expiration count.
	buf := make([]byte, 8)
	if _, err := a.f.Read(buf); err != nil {
		return
	}
	a.trigger(fire)
}

// BoottimeAlarms returns an AlarmFunc backed by Linux timerfds. It prefers
// CLOCK_BOOTTIME_ALARM, which also brings the host out of suspend, and falls
// back to CLOCK_BOOTTIME, which keeps counting while suspended but only fires
// once the host resumes.
func BoottimeAlarms(logger log.Logger) (AlarmFunc, error) {
	clockID, err := probeBoottimeClock()
	if err != nil {
		return nil, err
	}
	if clockID == unix.CLOCK_BOOTTIME {
		logger.Info("CLOCK_BOOTTIME_ALARM unavailable; alarms will not wake a suspended host",
			"hint", "grant CAP_WAKE_ALARM")
	}

	return func(h Handle, d time.Duration, fire func()) (Alarm, error) {
		fd, err := unix.TimerfdCreate(clockID, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
		if err != nil {
			return nil, fmt.Errorf("timerfd_create: %w", err)
		}

		// A zero it_value disarms a timerfd instead of firing it.
		if d <= 0 {
			d = time.Nanosecond
		}
		spec := unix.ItimerSpec{Value: unix.NsecToTimespec(d.Nanoseconds())}
		if err := unix.TimerfdSettime(fd, 0, &spec, nil); err != nil {
			_ = unix.Close(fd)
			return nil, fmt.Errorf("timerfd_settime: %w", err)
		}

		// The descriptor is non-blocking, so os.NewFile hands it to the
		// runtime poller and Read parks the goroutine instead of a thread.
		a := &boottimeAlarm{f: os.NewFile(uintptr(fd), h.String())}
		go a.wait(fire)

		return a, nil
	}, nil
}

func probeBoottimeClock() (int, error) {
	for _, clockID := range []int{unix.CLOCK_BOOTTIME_ALARM, unix.CLOCK_BOOTTIME} {
		fd, err := unix.TimerfdCreate(clockID, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
		if err == nil {
			_ = unix.Close(fd)
			return clockID, nil
		}
		if errors.Is(err, unix.EPERM) || errors.Is(err, unix.EINVAL) {
			continue
		}
		return 0, fmt.Errorf("timerfd_create: %w", err)
	}
	return 0, fmt.Errorf("%w: no usable boottime clock", ErrUnsupported)
}
