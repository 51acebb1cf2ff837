package wake

import (
	"errors"
	"fmt"

	"github.com/benbjohnson/clock"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
)

// BackendManual names the backend of ManualService. It cannot be selected
// through configuration.
const BackendManual = "manual"

// NewService returns the (unstarted) wake service described by cfg. The auto
// backend resolves to boottime where the platform supports it and to
// wallclock otherwise.
func NewService(logger log.Logger, cfg *config.WakeConfig, metrics *Metrics) (*AlarmService, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	if metrics == nil {
		metrics = NopMetrics()
	}

	backend := cfg.Backend
	var newAlarm AlarmFunc

	switch backend {
	case config.WakeBackendAuto:
		fn, err := BoottimeAlarms(logger)
		switch {
		case err == nil:
			backend, newAlarm = config.WakeBackendBoottime, fn
		case errors.Is(err, ErrUnsupported):
			logger.Info("boottime wake alarms unsupported; using wallclock", "err", err)
			backend = config.WakeBackendWallclock
			newAlarm = WallclockAlarms(clock.New(), cfg.WallclockCheckInterval)
		default:
			return nil, err
		}

	case config.WakeBackendBoottime:
		fn, err := BoottimeAlarms(logger)
		if err != nil {
			return nil, fmt.Errorf("boottime backend: %w", err)
		}
		newAlarm = fn

	case config.WakeBackendWallclock:
		newAlarm = WallclockAlarms(clock.New(), cfg.WallclockCheckInterval)

	case config.WakeBackendMonotonic:
		newAlarm = MonotonicAlarms(clock.New())

	default:
		return nil, fmt.Errorf("unknown wake backend %q", backend)
	}

	return NewAlarmService(
		logger,
		backend,
		cfg.Action,
		newAlarm,
		WithIDPool(NewIDPool(cfg.MaxRegistrations)),
		WithMetrics(metrics),
	), nil
}
