package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for orchestration operations.
type Metrics struct {
	config MetricsConfig

	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	failuresByKind    *prometheus.CounterVec
	commandsIssued    *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operations_total",
				Help:      "Total number of orchestration operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		operationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "operation_duration_seconds",
				Help:      "Duration of orchestration operations in seconds",
				Buckets:   buckets,
			},
			[]string{"operation", "class"},
		),
		failuresByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "failures_total",
				Help:      "Total number of failed operations by failure kind",
			},
			[]string{"kind"},
		),
		commandsIssued: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "commands_issued_total",
				Help:      "Total number of remote commands issued by timeout class",
			},
			[]string{"class"},
		),
	}

	registry.MustRegister(
		m.operations,
		m.operationDuration,
		m.failuresByKind,
		m.commandsIssued,
	)

	return m, nil
}

// RecordOperation records a finished operation with its outcome and duration.
func (m *Metrics) RecordOperation(operation, class, outcome string, duration time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation, class).Observe(duration.Seconds())
}

// RecordFailure records a failure by kind.
func (m *Metrics) RecordFailure(kind string) {
	if m == nil || m.failuresByKind == nil {
		return
	}
	m.failuresByKind.WithLabelValues(kind).Inc()
}

// RecordCommand counts a command handed to the runner.
func (m *Metrics) RecordCommand(class string) {
	if m == nil || m.commandsIssued == nil {
		return
	}
	m.commandsIssued.WithLabelValues(class).Inc()
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Gatherer exposes the underlying registry; nil when metrics are disabled.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil || m.registry == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// WriteTextfile writes the current metrics to the configured textfile path
// for the node_exporter textfile collector. It is a no-op when disabled or
// when no path is configured.
func (m *Metrics) WriteTextfile() error {
	if m == nil || m.registry == nil || m.config.TextfilePath == "" {
		return nil
	}
	return prometheus.WriteToTextfile(m.config.TextfilePath, m.registry)
}
