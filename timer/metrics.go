package timer

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "sleep_timer"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of cycles armed with the wake service.
	Arms metrics.Counter
	// Number of sleeps that joined an already armed cycle.
	Coalesced metrics.Counter
	// Number of cycles released, labeled by reason ("wake", "fallback" or
	// "abandoned").
	Releases metrics.Counter
	// Number of sleeps that failed to arm a cycle.
	RegistrationFailures metrics.Counter
	// Number of sleeps interrupted before release.
	Interruptions metrics.Counter
	// Number of sleeps currently blocked.
	Sleepers metrics.Gauge
}

// PrometheusMetrics returns Metrics build using Prometheus client library.
// Optionally, labels can be provided along with their values ("foo",
// "fooValue").
func PrometheusMetrics(namespace string, labelsAndValues ...string) *Metrics {
	labels := []string{}
	for i := 0; i < len(labelsAndValues); i += 2 {
		labels = append(labels, labelsAndValues[i])
	}
	return &Metrics{
		Arms: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "arms",
			Help:      "Number of sleep cycles armed with the wake service.",
		}, labels).With(labelsAndValues...),
		Coalesced: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "coalesced",
			Help:      "Number of sleeps that joined an already armed cycle.",
		}, labels).With(labelsAndValues...),
		Releases: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "releases",
			Help:      "Number of sleep cycles released, by reason.",
		}, append(labels, "reason")).With(labelsAndValues...),
		RegistrationFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "registration_failures",
			Help:      "Number of sleeps that could not arm a cycle.",
		}, labels).With(labelsAndValues...),
		Interruptions: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "interruptions",
			Help:      "Number of sleeps interrupted before release.",
		}, labels).With(labelsAndValues...),
		Sleepers: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "sleepers",
			Help:      "Number of sleeps currently blocked.",
		}, labels).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Arms:                 discard.NewCounter(),
		Coalesced:            discard.NewCounter(),
		Releases:             discard.NewCounter(),
		RegistrationFailures: discard.NewCounter(),
		Interruptions:        discard.NewCounter(),
		Sleepers:             discard.NewGauge(),
	}
}
