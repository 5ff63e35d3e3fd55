package middleware

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/architech/spanav/internal/errors"
	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/spa"
)

func metricCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("counter Write() error: %v", err)
	}
	if m.Counter == nil {
		t.Fatal("expected counter metric to have Counter field")
	}
	return m.GetCounter().GetValue()
}

func metricGaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("gauge Write() error: %v", err)
	}
	if m.Gauge == nil {
		t.Fatal("expected gauge metric to have Gauge field")
	}
	return m.GetGauge().GetValue()
}

func metricHistogramCount(t *testing.T, o prometheus.Observer) uint64 {
	t.Helper()
	metric, ok := o.(prometheus.Metric)
	if !ok {
		t.Fatalf("observer %T does not implement prometheus.Metric", o)
	}
	var m dto.Metric
	if err := metric.Write(&m); err != nil {
		t.Fatalf("histogram Write() error: %v", err)
	}
	if m.Histogram == nil {
		t.Fatal("expected histogram metric to have Histogram field")
	}
	return m.GetHistogram().GetSampleCount()
}

func TestMetricsNavigation(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(WithRegistry(reg), WithNamespace("test"))

	ctx := m.NavigationStarted(context.Background(), "/a")
	if got := metricGaugeValue(t, m.inFlight); got != 1 {
		t.Errorf("in flight = %v, want 1", got)
	}
	m.NavigationFinished(ctx, "/a", spa.ResultNavigated, nil, 20*time.Millisecond)

	ctx = m.NavigationStarted(context.Background(), "/b")
	m.NavigationFinished(ctx, "/b", spa.ResultFallback, errors.New("E101").WithPath("/b"), time.Millisecond)

	ctx = m.NavigationStarted(context.Background(), "/c")
	m.NavigationFinished(ctx, "/c", spa.ResultFallback, stderrors.New("plain"), time.Millisecond)

	if got := metricGaugeValue(t, m.inFlight); got != 0 {
		t.Errorf("in flight = %v, want 0", got)
	}
	if got := metricCounterValue(t, m.navigations.WithLabelValues("navigated")); got != 1 {
		t.Errorf("navigated = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.navigations.WithLabelValues("fallback")); got != 2 {
		t.Errorf("fallback = %v, want 2", got)
	}
	if got := metricCounterValue(t, m.navigationErrors.WithLabelValues("E101")); got != 1 {
		t.Errorf("E101 errors = %v, want 1", got)
	}
	if got := metricCounterValue(t, m.navigationErrors.WithLabelValues("internal")); got != 1 {
		t.Errorf("internal errors = %v, want 1", got)
	}
	if got := metricHistogramCount(t, m.navigationDuration.WithLabelValues("fallback")); got != 2 {
		t.Errorf("fallback duration samples = %d, want 2", got)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}
	found := false
	for _, f := range families {
		if f.GetName() == "test_navigations_total" {
			found = true
		}
	}
	if !found {
		t.Error("test_navigations_total not registered")
	}
}

func TestMetricsFetchAndSessions(t *testing.T) {
	m := NewMetrics(WithRegistry(prometheus.NewRegistry()))

	m.ObserveFetch(fetch.Event{Path: "/a", Source: fetch.SourceNetwork, Duration: time.Millisecond})
	m.ObserveFetch(fetch.Event{Path: "/a", Source: fetch.SourceCache})
	m.ObserveFetch(fetch.Event{Path: "/b", Source: fetch.SourceNetwork, Err: stderrors.New("down")})

	if got := metricCounterValue(t, m.fetches.WithLabelValues("network", "success")); got != 1 {
		t.Errorf("network success = %v", got)
	}
	if got := metricCounterValue(t, m.fetches.WithLabelValues("network", "error")); got != 1 {
		t.Errorf("network error = %v", got)
	}
	if got := metricHistogramCount(t, m.fetchDuration.WithLabelValues("cache")); got != 1 {
		t.Errorf("cache samples = %d", got)
	}

	m.RecordSessionOpen()
	m.RecordSessionOpen()
	m.RecordSessionClose()
	if got := metricGaugeValue(t, m.activeSessions); got != 1 {
		t.Errorf("active sessions = %v, want 1", got)
	}
	m.RecordWebSocketError("read")
	if got := metricCounterValue(t, m.wsErrors.WithLabelValues("read")); got != 1 {
		t.Errorf("ws errors = %v", got)
	}
}

func TestMetricsDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	NewMetrics(WithRegistry(reg))
	defer func() {
		if recover() == nil {
			t.Error("second NewMetrics on the same registry did not panic")
		}
	}()
	NewMetrics(WithRegistry(reg))
}
