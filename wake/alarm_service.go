package wake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/libs/service"
)

// Alarm is a single armed one-shot timer of some backend.
type Alarm interface {
	// Stop prevents the alarm from firing. It returns false if the alarm
	// already fired or was already stopped.
	Stop() bool
}

// AlarmFunc arms an alarm for registration h that calls fire once after d.
// fire must be called from a goroutine other than the one calling the
// AlarmFunc.
type AlarmFunc func(h Handle, d time.Duration, fire func()) (Alarm, error)

type registration struct {
	cb           Callback
	alarm        Alarm
	registeredAt time.Time
}

// AlarmService is a Service that times registrations with an AlarmFunc. It
// must be started before use; stopping it cancels every outstanding
// registration.
type AlarmService struct {
	service.BaseService

	backend    string
	action     string
	newAlarm   AlarmFunc
	ids        *IDPool
	metrics    *Metrics
	dispatcher *dispatcher

	mtx     sync.Mutex
	pending map[Handle]*registration
}

var _ Service = (*AlarmService)(nil)

// AlarmServiceOption sets an optional parameter on the AlarmService.
type AlarmServiceOption func(*AlarmService)

// WithMetrics sets the metrics.
func WithMetrics(metrics *Metrics) AlarmServiceOption {
	return func(s *AlarmService) { s.metrics = metrics.withBackend(s.backend) }
}

// WithIDPool makes the service draw handle ids from ids, which may be shared
// with other services using the same action name.
func WithIDPool(ids *IDPool) AlarmServiceOption {
	return func(s *AlarmService) { s.ids = ids }
}

// NewAlarmService returns a service named backend whose handles are named after
// action and whose alarms are armed by newAlarm.
func NewAlarmService(
	logger log.Logger,
	backend string,
	action string,
	newAlarm AlarmFunc,
	options ...AlarmServiceOption,
) *AlarmService {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	logger = logger.With("module", "wake", "backend", backend)

	s := &AlarmService{
		backend:    backend,
		action:     action,
		newAlarm:   newAlarm,
		ids:        NewIDPool(0),
		metrics:    NopMetrics(),
		dispatcher: newDispatcher(logger),
		pending:    make(map[Handle]*registration),
	}
	s.BaseService = *service.NewBaseService(logger, "WakeService", s)

	for _, option := range options {
		option(s)
	}
	return s
}

// OnStart implements service.Service.
func (s *AlarmService) OnStart(ctx context.Context) error {
	return s.dispatcher.Start(ctx)
}

// OnStop implements service.Service by canceling every outstanding
// registration.
func (s *AlarmService) OnStop() {
	s.mtx.Lock()
	for h, reg := range s.pending {
		s.stopLocked(h, reg)
		delete(s.pending, h)
		s.metrics.Cancels.Add(1)
	}
	s.metrics.Pending.Set(0)
	s.mtx.Unlock()

	if err := s.dispatcher.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
		s.Logger.Error("failed to stop wake dispatcher", "err", err)
	}
}

// Backend returns the backend name the service was created with.
func (s *AlarmService) Backend() string { return s.backend }

// Register implements Service.
func (s *AlarmService) Register(d time.Duration, cb Callback) (Handle, error) {
	if cb == nil {
		return Handle{}, errors.New("nil wake callback")
	}
	if d < 0 {
		return Handle{}, fmt.Errorf("%w: %v", ErrInvalidDuration, d)
	}
	if !s.IsRunning() {
		s.metrics.RegistrationFailures.Add(1)
		return Handle{}, ErrNotRunning
	}

	id, err := s.ids.Acquire()
	if err != nil {
		s.metrics.RegistrationFailures.Add(1)
		return Handle{}, err
	}
	h := NewHandle(s.action, id)

	s.mtx.Lock()
	defer s.mtx.Unlock()

	alarm, err := s.newAlarm(h, d, func() { s.fire(h) })
	if err != nil {
		s.ids.Release(id)
		s.metrics.RegistrationFailures.Add(1)
		return Handle{}, fmt.Errorf("failed to arm %s alarm: %w", s.backend, err)
	}

	s.pending[h] = &registration{cb: cb, alarm: alarm, registeredAt: time.Now()}
	s.metrics.Registrations.Add(1)
	s.metrics.Pending.Set(float64(len(s.pending)))
	s.Logger.Debug("registered wake alarm", "handle", h, "dur", d)

	return h, nil
}

// Cancel implements Service.
func (s *AlarmService) Cancel(h Handle) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	reg, ok := s.pending[h]
	if !ok {
		return nil
	}
	delete(s.pending, h)
	s.stopLocked(h, reg)

	s.metrics.Cancels.Add(1)
	s.metrics.Pending.Set(float64(len(s.pending)))
	s.Logger.Debug("canceled wake alarm", "handle", h)

	return nil
}

// stopLocked stops the alarm of a registration that was just removed from
// pending. If the alarm already fired, its fire call is still on the way and
// will find nothing pending; the id stays held until then so that call can
// never match a newer registration reusing the handle.
func (s *AlarmService) stopLocked(h Handle, reg *registration) {
	if reg.alarm.Stop() {
		s.ids.Release(h.id)
	}
}

// Pending returns the number of outstanding registrations.
func (s *AlarmService) Pending() int {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	return len(s.pending)
}

func (s *AlarmService) fire(h Handle) {
	s.mtx.Lock()
	reg, ok := s.pending[h]
	if ok {
		delete(s.pending, h)
		s.metrics.Pending.Set(float64(len(s.pending)))
	}
	s.mtx.Unlock()

	if !ok {
		// canceled after the alarm fired; the id was left held for us
		s.ids.Release(h.id)
		s.Logger.Debug("dropped wake for canceled registration", "handle", h)
		return
	}

	s.metrics.Fired.Add(1)
	s.Logger.Debug("wake alarm fired", "handle", h, "after", time.Since(reg.registeredAt.Round(0)))

	// The id stays held until the callback has run so that a stale delivery
	// can never carry the handle of a newer registration.
	s.dispatcher.enqueue(func() {
		defer s.ids.Release(h.id)
		reg.cb(h)
	})
}
