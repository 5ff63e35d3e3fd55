package middleware

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/spa"
)

// MetricsConfig configures the Prometheus metrics.
type MetricsConfig struct {
	// Namespace is the metrics namespace (default: "spanav").
	Namespace string

	// Subsystem is the metrics subsystem (default: "").
	Subsystem string

	// ConstLabels are constant labels added to all metrics.
	ConstLabels prometheus.Labels

	// Buckets are the histogram buckets for durations.
	// Default: prometheus.DefBuckets
	Buckets []float64

	// Registry is the Prometheus registry to use.
	// Default: prometheus.DefaultRegisterer
	Registry prometheus.Registerer
}

// MetricsOption configures the Prometheus metrics.
type MetricsOption func(*MetricsConfig)

// WithNamespace sets the metrics namespace.
func WithNamespace(namespace string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Namespace = namespace
	}
}

// WithSubsystem sets the metrics subsystem.
func WithSubsystem(subsystem string) MetricsOption {
	return func(c *MetricsConfig) {
		c.Subsystem = subsystem
	}
}

// WithConstLabels sets constant labels for all metrics.
func WithConstLabels(labels prometheus.Labels) MetricsOption {
	return func(c *MetricsConfig) {
		c.ConstLabels = labels
	}
}

// WithBuckets sets the histogram buckets.
func WithBuckets(buckets []float64) MetricsOption {
	return func(c *MetricsConfig) {
		c.Buckets = buckets
	}
}

// WithRegistry sets the Prometheus registry.
func WithRegistry(registry prometheus.Registerer) MetricsOption {
	return func(c *MetricsConfig) {
		c.Registry = registry
	}
}

func defaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Namespace: "spanav",
		Buckets:   prometheus.DefBuckets,
		Registry:  prometheus.DefaultRegisterer,
	}
}

// Metrics records router activity. It implements spa.Observer; pass
// ObserveFetch as spa.Config.OnFetch for fetch metrics.
type Metrics struct {
	navigations        *prometheus.CounterVec
	navigationDuration *prometheus.HistogramVec
	navigationErrors   *prometheus.CounterVec
	inFlight           prometheus.Gauge
	fetches            *prometheus.CounterVec
	fetchDuration      *prometheus.HistogramVec
	activeSessions     prometheus.Gauge
	wsErrors           *prometheus.CounterVec
}

var _ spa.Observer = (*Metrics)(nil)

// NewMetrics registers the router metrics.
//
// Metrics collected:
//   - spanav_navigations_total: navigations by result
//   - spanav_navigation_duration_seconds: navigation duration by result
//   - spanav_navigation_errors_total: failed navigations by error code
//   - spanav_navigations_in_flight: navigations currently running
//   - spanav_fetches_total: page fetches by source and status
//   - spanav_fetch_duration_seconds: page fetch duration by source
//   - spanav_active_sessions: connected bridge sessions
//   - spanav_websocket_errors_total: bridge errors by type
//
// Registering twice on the same registry panics.
func NewMetrics(opts ...MetricsOption) *Metrics {
	config := defaultMetricsConfig()
	for _, opt := range opts {
		opt(&config)
	}
	factory := promauto.With(config.Registry)

	return &Metrics{
		navigations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigations_total",
			Help:        "Total number of navigation attempts by result",
			ConstLabels: config.ConstLabels,
		}, []string{"result"}),

		navigationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigation_duration_seconds",
			Help:        "Navigation duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"result"}),

		navigationErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigation_errors_total",
			Help:        "Total number of failed navigations by error code",
			ConstLabels: config.ConstLabels,
		}, []string{"code"}),

		inFlight: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "navigations_in_flight",
			Help:        "Number of navigations currently running",
			ConstLabels: config.ConstLabels,
		}),

		fetches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetches_total",
			Help:        "Total number of page fetches by source and status",
			ConstLabels: config.ConstLabels,
		}, []string{"source", "status"}),

		fetchDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "fetch_duration_seconds",
			Help:        "Page fetch duration in seconds",
			ConstLabels: config.ConstLabels,
			Buckets:     config.Buckets,
		}, []string{"source"}),

		activeSessions: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "active_sessions",
			Help:        "Number of connected bridge sessions",
			ConstLabels: config.ConstLabels,
		}),

		wsErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace:   config.Namespace,
			Subsystem:   config.Subsystem,
			Name:        "websocket_errors_total",
			Help:        "Total bridge WebSocket errors by type",
			ConstLabels: config.ConstLabels,
		}, []string{"type"}),
	}
}

// NavigationStarted implements spa.Observer.
func (m *Metrics) NavigationStarted(ctx context.Context, _ string) context.Context {
	m.inFlight.Inc()
	return ctx
}

// NavigationFinished implements spa.Observer.
func (m *Metrics) NavigationFinished(_ context.Context, _ string, result spa.Result, err error, elapsed time.Duration) {
	m.inFlight.Dec()
	label := result.String()
	m.navigations.WithLabelValues(label).Inc()
	m.navigationDuration.WithLabelValues(label).Observe(elapsed.Seconds())
	if err != nil {
		m.navigationErrors.WithLabelValues(errorCode(err)).Inc()
	}
}

// ObserveFetch records a settled fetch.
func (m *Metrics) ObserveFetch(e fetch.Event) {
	status := "success"
	if e.Err != nil {
		status = "error"
	}
	m.fetches.WithLabelValues(string(e.Source), status).Inc()
	m.fetchDuration.WithLabelValues(string(e.Source)).Observe(e.Duration.Seconds())
}

// RecordSessionOpen records a bridge session connecting.
func (m *Metrics) RecordSessionOpen() {
	m.activeSessions.Inc()
}

// RecordSessionClose records a bridge session going away.
func (m *Metrics) RecordSessionClose() {
	m.activeSessions.Dec()
}

// RecordWebSocketError records a bridge error.
func (m *Metrics) RecordWebSocketError(errorType string) {
	m.wsErrors.WithLabelValues(errorType).Inc()
}

// errorCode keeps the error label low-cardinality.
func errorCode(err error) string {
	if code := errors.Code(err); code != "" {
		return code
	}
	return "internal"
}
