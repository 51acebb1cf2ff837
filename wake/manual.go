package wake

import (
	"sort"
	"sync"
	"time"

	"github.com/tendermint/alarm/libs/log"
)

type manualAlarm struct {
	oneShot
	fire     func()
	duration time.Duration
}

func (a *manualAlarm) Stop() bool { return a.stop() }

// ManualService is an AlarmService whose alarms only fire when told to. It is
// meant for tests that need to control exactly when a wake is delivered.
type ManualService struct {
	*AlarmService

	mtx           sync.Mutex
	alarms        map[Handle]*manualAlarm
	registrations int
	failure       error
}

// NewManualService returns a ManualService using action "manual".
func NewManualService(logger log.Logger, options ...AlarmServiceOption) *ManualService {
	m := &ManualService{alarms: make(map[Handle]*manualAlarm)}
	m.AlarmService = NewAlarmService(logger, BackendManual, "manual", m.arm, options...)
	return m
}

func (m *ManualService) arm(h Handle, d time.Duration, fire func()) (Alarm, error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	if m.failure != nil {
		return nil, m.failure
	}

	a := &manualAlarm{fire: fire, duration: d}
	m.alarms[h] = a
	m.registrations++
	return a, nil
}

// FailRegistrations makes every following registration fail with err until
// it is called again with nil.
func (m *ManualService) FailRegistrations(err error) {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	m.failure = err
}

// Fire fires the alarm of h. It reports whether an armed alarm was found.
func (m *ManualService) Fire(h Handle) bool {
	m.mtx.Lock()
	a, ok := m.alarms[h]
	delete(m.alarms, h)
	m.mtx.Unlock()

	if !ok {
		return false
	}

	fired := false
	a.trigger(func() {
		fired = true
		a.fire()
	})
	return fired
}

// FireAll fires every armed alarm and returns how many fired.
func (m *ManualService) FireAll() int {
	n := 0
	for _, h := range m.Armed() {
		if m.Fire(h) {
			n++
		}
	}
	return n
}

// Armed returns the handles of alarms that are neither fired nor stopped,
// ordered by id.
func (m *ManualService) Armed() []Handle {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	handles := make([]Handle, 0, len(m.alarms))
	for h, a := range m.alarms {
		if a.armed() {
			handles = append(handles, h)
		}
	}
	sort.Slice(handles, func(i, j int) bool { return handles[i].id < handles[j].id })
	return handles
}

// Duration returns the duration h was registered with.
func (m *ManualService) Duration(h Handle) (time.Duration, bool) {
	m.mtx.Lock()
	defer m.mtx.Unlock()

	a, ok := m.alarms[h]
	if !ok {
		return 0, false
	}
	return a.duration, true
}

// Registrations returns the number of alarms armed since the service was
// created.
func (m *ManualService) Registrations() int {
	m.mtx.Lock()
	defer m.mtx.Unlock()
	return m.registrations
}
