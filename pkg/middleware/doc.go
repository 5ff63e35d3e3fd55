// Package middleware provides observability for the SPA router.
//
// This package includes:
//   - Prometheus metrics for navigations, fetches and bridge sessions
//   - OpenTelemetry tracing for navigations and page fetches
//
// Both plug into a router through spa.Config:
//
//	m := middleware.NewMetrics(middleware.WithRegistry(reg))
//	t := middleware.NewTracing(middleware.WithTracerName("site"))
//
//	cfg := spa.DefaultConfig()
//	cfg.Observer = middleware.Combine(m, t)
//	cfg.OnFetch = m.ObserveFetch
//	cfg.Transport = t.Transport(fetch.NewHTTPTransport(origin, 10*time.Second))
//
// Then expose metrics:
//
//	http.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
package middleware
