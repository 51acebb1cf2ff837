package wake

import (
	"github.com/go-kit/kit/metrics"
	"github.com/go-kit/kit/metrics/discard"
	"github.com/go-kit/kit/metrics/prometheus"
	stdprometheus "github.com/prometheus/client_golang/prometheus"
)

const (
	// MetricsSubsystem is a subsystem shared by all metrics exposed by this
	// package.
	MetricsSubsystem = "wake"
)

// Metrics contains metrics exposed by this package.
type Metrics struct {
	// Number of successful registrations.
	Registrations metrics.Counter
	// Number of registrations that could not be scheduled.
	RegistrationFailures metrics.Counter
	// Number of registrations revoked before firing.
	Cancels metrics.Counter
	// Number of registrations that fired.
	Fired metrics.Counter
	// Number of registrations currently outstanding.
	Pending metrics.Gauge
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
		Registrations: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "registrations",
			Help:      "Number of wake alarms registered.",
		}, append(labels, "backend")).With(labelsAndValues...),
		RegistrationFailures: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "registration_failures",
			Help:      "Number of wake alarms that could not be scheduled.",
		}, append(labels, "backend")).With(labelsAndValues...),
		Cancels: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "cancels",
			Help:      "Number of wake alarms canceled before firing.",
		}, append(labels, "backend")).With(labelsAndValues...),
		Fired: prometheus.NewCounterFrom(stdprometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "fired",
			Help:      "Number of wake alarms that fired.",
		}, append(labels, "backend")).With(labelsAndValues...),
		Pending: prometheus.NewGaugeFrom(stdprometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: MetricsSubsystem,
			Name:      "pending",
			Help:      "Number of wake alarms currently outstanding.",
		}, append(labels, "backend")).With(labelsAndValues...),
	}
}

// NopMetrics returns no-op Metrics.
func NopMetrics() *Metrics {
	return &Metrics{
		Registrations:        discard.NewCounter(),
		RegistrationFailures: discard.NewCounter(),
		Cancels:              discard.NewCounter(),
		Fired:                discard.NewCounter(),
		Pending:              discard.NewGauge(),
	}
}

// withBackend scopes every metric to the given backend label.
func (m *Metrics) withBackend(backend string) *Metrics {
	return &Metrics{
		Registrations:        m.Registrations.With("backend", backend),
		RegistrationFailures: m.RegistrationFailures.With("backend", backend),
		Cancels:              m.Cancels.With("backend", backend),
		Fired:                m.Fired.With("backend", backend),
		Pending:              m.Pending.With("backend", backend),
	}
}
