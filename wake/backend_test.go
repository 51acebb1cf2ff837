package wake_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/wake"
)

func TestNewService(t *testing.T) {
	testCases := map[string]struct {
		backend string
		want    string
	}{
		"auto":      {config.WakeBackendAuto, ""},
		"wallclock": {config.WakeBackendWallclock, config.WakeBackendWallclock},
		"monotonic": {config.WakeBackendMonotonic, config.WakeBackendMonotonic},
	}

	for name, tc := range testCases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			cfg := config.TestWakeConfig()
			cfg.Backend = tc.backend

			ws, err := wake.NewService(log.TestingLogger(), cfg, wake.NopMetrics())
			require.NoError(t, err)
			if tc.want == "" {
				// auto resolves to whatever the platform supports
				require.Contains(t, []string{config.WakeBackendBoottime, config.WakeBackendWallclock}, ws.Backend())
			} else {
				require.Equal(t, tc.want, ws.Backend())
			}
			require.False(t, ws.IsRunning())
		})
	}
}

func TestNewServiceInvalidConfig(t *testing.T) {
	cfg := config.TestWakeConfig()
	cfg.Backend = "alarmmanager"

	_, err := wake.NewService(log.TestingLogger(), cfg, nil)
	require.Error(t, err)
}

func TestNewServiceMaxRegistrations(t *testing.T) {
	cfg := config.TestWakeConfig()
	cfg.MaxRegistrations = 1

	ws, err := wake.NewService(log.TestingLogger(), cfg, wake.PrometheusMetrics("test_max_registrations"))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, ws.Start(ctx))
	defer ws.Stop() //nolint:errcheck // ignore for tests

	rec := newRecorder()
	h, err := ws.Register(time.Hour, rec.callback)
	require.NoError(t, err)
	require.Equal(t, cfg.Action+".0", h.String())

	_, err = ws.Register(time.Hour, rec.callback)
	require.ErrorIs(t, err, wake.ErrExhausted)

	require.NoError(t, ws.Cancel(h))
	_, err = ws.Register(time.Hour, rec.callback)
	require.NoError(t, err)
}
