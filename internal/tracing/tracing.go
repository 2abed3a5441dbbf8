// Package tracing provides optional OpenTelemetry distributed tracing
// for the request pipeline: a root span per request plus named child
// spans around the expensive steps (Wasm override invocation, upstream
// dispatch). Tracing is disabled unless explicitly configured; every
// exported method is a safe no-op on a disabled Tracer.
package tracing

import (
	"context"
	"net/http"
	"os"
	"strconv"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Config controls whether tracing is enabled and where spans are
// exported to.
type Config struct {
	Enabled     bool
	ServiceName string
	Endpoint    string
	Insecure    bool
	SampleRate  float64
}

// ConfigFromEnv builds a Config from RILOT_TRACING_ENABLED,
// RILOT_TRACING_ENDPOINT, RILOT_TRACING_SERVICE_NAME,
// RILOT_TRACING_INSECURE, and RILOT_TRACING_SAMPLE_RATE. Tracing stays
// disabled unless RILOT_TRACING_ENABLED is truthy, so the rest of
// spec.md's env-var contract (§6) is unaffected when unset.
func ConfigFromEnv() Config {
	sampleRate := 1.0
	if v := os.Getenv("RILOT_TRACING_SAMPLE_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			sampleRate = f
		}
	}
	return Config{
		Enabled:     truthy(os.Getenv("RILOT_TRACING_ENABLED")),
		ServiceName: os.Getenv("RILOT_TRACING_SERVICE_NAME"),
		Endpoint:    os.Getenv("RILOT_TRACING_ENDPOINT"),
		Insecure:    truthy(os.Getenv("RILOT_TRACING_INSECURE")),
		SampleRate:  sampleRate,
	}
}

func truthy(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}

// Tracer is a process-wide OpenTelemetry tracer. A disabled Tracer is a
// valid zero-cost value: every method degrades to passing the context
// and handler through untouched.
type Tracer struct {
	enabled  bool
	provider *sdktrace.TracerProvider
	tracer   trace.Tracer
	prop     propagation.TextMapPropagator
}

// New creates a Tracer from cfg. When cfg.Enabled is false, New returns
// a disabled Tracer and never dials an exporter.
func New(cfg Config) (*Tracer, error) {
	if !cfg.Enabled {
		return &Tracer{}, nil
	}

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "rilot-proxy"
	}
	sampleRate := cfg.SampleRate
	if sampleRate <= 0 {
		sampleRate = 1.0
	}

	ctx := context.Background()

	opts := []otlptracegrpc.Option{}
	if cfg.Endpoint != "" {
		opts = append(opts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
	}
	if cfg.Insecure {
		opts = append(opts, otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())))
		opts = append(opts, otlptracegrpc.WithInsecure())
	}

	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String(serviceName)))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(sampleRate)),
	)
	otel.SetTracerProvider(provider)

	prop := propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{})
	otel.SetTextMapPropagator(prop)

	return &Tracer{
		enabled:  true,
		provider: provider,
		tracer:   provider.Tracer("rilot-proxy"),
		prop:     prop,
	}, nil
}

// IsEnabled reports whether t was configured with an exporter.
func (t *Tracer) IsEnabled() bool {
	return t != nil && t.enabled
}

// Middleware wraps next with a root span per request, named after the
// request method and path. A disabled Tracer returns next unchanged.
func (t *Tracer) Middleware(next http.Handler) http.Handler {
	if !t.IsEnabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := t.prop.Extract(r.Context(), propagation.HeaderCarrier(r.Header))

		ctx, span := t.tracer.Start(ctx, r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				semconv.HTTPRequestMethodKey.String(r.Method),
				semconv.URLPath(r.URL.Path),
			),
		)
		defer span.End()

		if span.SpanContext().HasTraceID() {
			w.Header().Set("X-Trace-Id", span.SpanContext().TraceID().String())
		}

		tw := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(tw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.response.status_code", tw.statusCode))
		if tw.statusCode >= 500 {
			span.SetStatus(1, http.StatusText(tw.statusCode))
		}
	})
}

// StartSpan starts a named child span in ctx, for wrapping an
// individual pipeline step (Wasm invocation, upstream dispatch). On a
// disabled Tracer it returns ctx and the no-op span already attached to
// it, so callers never need a nil check before calling span.End().
func (t *Tracer) StartSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if !t.IsEnabled() {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, name, trace.WithSpanKind(trace.SpanKindInternal))
}

// Close shuts down the tracer provider, flushing any buffered spans.
func (t *Tracer) Close(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

// statusWriter captures the status code written through an
// http.ResponseWriter so the root span can record it after the handler
// returns.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
