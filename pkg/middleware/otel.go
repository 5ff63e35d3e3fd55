package middleware

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/architech/spanav/pkg/fetch"
	"github.com/architech/spanav/pkg/spa"
)

const defaultTracerName = "spanav"

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	// TracerName is the name of the tracer (default: "spanav").
	TracerName string

	// TracerProvider supplies the tracer.
	// Default: the global provider (otel.GetTracerProvider()).
	TracerProvider trace.TracerProvider

	// Filter determines which paths to trace. Nil traces everything.
	Filter func(path string) bool

	// Attributes adds custom attributes to navigation spans.
	Attributes func(path string) []attribute.KeyValue
}

// TracingOption configures OpenTelemetry tracing.
type TracingOption func(*TracingConfig)

// WithTracerName sets the tracer name.
func WithTracerName(name string) TracingOption {
	return func(c *TracingConfig) {
		c.TracerName = name
	}
}

// WithTracerProvider sets the tracer provider.
func WithTracerProvider(tp trace.TracerProvider) TracingOption {
	return func(c *TracingConfig) {
		c.TracerProvider = tp
	}
}

// WithPathFilter sets a filter for traced paths.
func WithPathFilter(filter func(path string) bool) TracingOption {
	return func(c *TracingConfig) {
		c.Filter = filter
	}
}

// WithAttributes sets a custom attribute extractor.
func WithAttributes(fn func(path string) []attribute.KeyValue) TracingOption {
	return func(c *TracingConfig) {
		c.Attributes = fn
	}
}

// Tracing traces navigations and page fetches. It implements
// spa.Observer; wrap the router's transport with Transport to get a
// child span per request.
type Tracing struct {
	config TracingConfig
	tracer trace.Tracer
}

var _ spa.Observer = (*Tracing)(nil)

// navSpanKey marks contexts carrying a navigation span started here.
type navSpanKey struct{}

// NewTracing creates the tracing observer.
//
// The tracer uses the global OpenTelemetry tracer provider unless one is
// given. Configure it in main() before starting the router:
//
//	tp := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exporter))
//	otel.SetTracerProvider(tp)
func NewTracing(opts ...TracingOption) *Tracing {
	config := TracingConfig{TracerName: defaultTracerName}
	for _, opt := range opts {
		opt(&config)
	}
	if config.TracerProvider == nil {
		config.TracerProvider = otel.GetTracerProvider()
	}
	return &Tracing{
		config: config,
		tracer: config.TracerProvider.Tracer(config.TracerName),
	}
}

// NavigationStarted implements spa.Observer. The returned context carries
// the navigation span, so fetches made for it become child spans.
func (t *Tracing) NavigationStarted(ctx context.Context, path string) context.Context {
	if t.config.Filter != nil && !t.config.Filter(path) {
		return ctx
	}
	attrs := []attribute.KeyValue{attribute.String("spanav.path", path)}
	if t.config.Attributes != nil {
		attrs = append(attrs, t.config.Attributes(path)...)
	}
	ctx, _ = t.tracer.Start(ctx, "spanav.navigate",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
		trace.WithTimestamp(time.Now()),
	)
	return context.WithValue(ctx, navSpanKey{}, true)
}

// NavigationFinished implements spa.Observer.
func (t *Tracing) NavigationFinished(ctx context.Context, _ string, result spa.Result, err error, _ time.Duration) {
	if ok, _ := ctx.Value(navSpanKey{}).(bool); !ok {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("spanav.result", result.String()))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// Transport wraps next so every request gets a client span. A nil next
// stays nil.
func (t *Tracing) Transport(next fetch.Transport) fetch.Transport {
	if next == nil {
		return nil
	}
	return fetch.TransportFunc(func(ctx context.Context, href string, header http.Header) (*fetch.Response, error) {
		ctx, span := t.tracer.Start(ctx, "spanav.fetch",
			trace.WithSpanKind(trace.SpanKindClient),
			trace.WithAttributes(attribute.String("spanav.href", href)),
		)
		defer span.End()

		resp, err := next.Get(ctx, href, header)
		switch {
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		case !resp.OK():
			span.SetAttributes(attribute.Int("http.status_code", resp.Status))
			span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.Status))
		default:
			span.SetAttributes(attribute.Int("http.status_code", resp.Status))
		}
		return resp, err
	})
}
