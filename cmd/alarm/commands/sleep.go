package commands

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tendermint/alarm/config"
	"github.com/tendermint/alarm/libs/log"
	"github.com/tendermint/alarm/libs/service"
	"github.com/tendermint/alarm/timer"
	"github.com/tendermint/alarm/wake"
)

const (
	flagSleepers = "sleepers"
	flagStagger  = "stagger"
)

type sleepResult struct {
	id        uuid.UUID
	requested time.Duration
	slept     time.Duration
}

// MakeSleepCommand returns the command that runs concurrent sleepers against
// the configured wake service and reports when each was released.
func MakeSleepCommand(conf *config.Config, logger log.Logger) *cobra.Command {
	var (
		sleepers int
		stagger  time.Duration
	)

	cmd := &cobra.Command{
		Use:   "sleep [duration]",
		Short: "Sleep for a duration, surviving host suspend",
		Long: `Sleep blocks for the given duration using the configured wake backend.

With --sleepers N, N concurrent sleeps share one wake alarm: the first arms it
and the rest join it. With --stagger, the i-th sleeper asks for
duration + i*stagger, showing how later sleepers return with the first alarm
unless strict durations are enabled.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[0], err)
			}
			if sleepers < 1 {
				return fmt.Errorf("--%s must be at least 1", flagSleepers)
			}

			results, err := runSleepers(cmd.Context(), conf, logger, d, sleepers, stagger)
			for _, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%s requested=%v slept=%v\n", r.id, r.requested, r.slept.Round(time.Millisecond))
			}
			return err
		},
	}

	cmd.Flags().IntVar(&sleepers, flagSleepers, 1, "number of concurrent sleepers")
	cmd.Flags().DurationVar(&stagger, flagStagger, 0, "extra duration requested by each subsequent sleeper")
	return cmd
}

func runSleepers(
	ctx context.Context,
	conf *config.Config,
	logger log.Logger,
	d time.Duration,
	sleepers int,
	stagger time.Duration,
) ([]sleepResult, error) {
	wakeMetrics, timerMetrics := wake.NopMetrics(), timer.NopMetrics()
	if conf.Instrumentation.Prometheus {
		wakeMetrics = wake.PrometheusMetrics(conf.Instrumentation.Namespace)
		timerMetrics = timer.PrometheusMetrics(conf.Instrumentation.Namespace)

		srv := startPrometheusServer(logger, conf.Instrumentation.PrometheusListenAddr)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			if err := srv.Shutdown(sctx); err != nil {
				logger.Error("failed to stop prometheus server", "err", err)
			}
		}()
	}

	ws, err := wake.NewService(logger, conf.Wake, wakeMetrics)
	if err != nil {
		return nil, err
	}
	if err := ws.Start(ctx); err != nil {
		return nil, err
	}
	defer func() {
		if err := ws.Stop(); err != nil && !errors.Is(err, service.ErrAlreadyStopped) {
			logger.Error("failed to stop wake service", "err", err)
		}
	}()

	tm := timer.New(logger, conf.Timer, ws, timer.WithMetrics(timerMetrics))
	logger.Info("sleeping", "backend", ws.Backend(), "dur", d, "sleepers", sleepers, "stagger", stagger)

	var (
		mtx     sync.Mutex
		results []sleepResult
	)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < sleepers; i++ {
		r := sleepResult{id: uuid.New(), requested: d + time.Duration(i)*stagger}
		g.Go(func() error {
			slogger := logger.With("sleeper", r.id)
			start := time.Now()
			if err := tm.Sleep(gctx, r.requested); err != nil {
				slogger.Error("sleep failed", "dur", r.requested, "err", err)
				return err
			}
			r.slept = time.Since(start)
			slogger.Info("released", "dur", r.requested, "slept", r.slept)

			mtx.Lock()
			results = append(results, r)
			mtx.Unlock()
			return nil
		})
	}
	err = g.Wait()

	sort.Slice(results, func(i, j int) bool { return results[i].requested < results[j].requested })
	return results, err
}

func startPrometheusServer(logger log.Logger, addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("prometheus server failed", "err", err)
		}
	}()
	return srv
}
