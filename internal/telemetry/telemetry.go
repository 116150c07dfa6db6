// Package telemetry wires OpenTelemetry tracing for newsdex. Spans are exported over
// OTLP/HTTP; when tracing is disabled the global no-op provider stays in place.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	oteltrace "go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// Config holds tracing settings.
type Config struct {
	Enabled        bool
	Endpoint       string // host:port, scheme optional
	Insecure       bool
	SampleRate     float64
	ServiceName    string
	ServiceVersion string
}

// Option configures provider creation.
type Option func(*options)

type options struct {
	exporter trace.SpanExporter
	syncer   bool
}

// WithSpanExporter replaces the OTLP exporter, e.g. with an in-memory one in tests.
// Spans are exported synchronously.
func WithSpanExporter(exp trace.SpanExporter) Option {
	return func(o *options) {
		o.exporter = exp
		o.syncer = true
	}
}

// Telemetry owns the tracer provider.
type Telemetry struct {
	provider *trace.TracerProvider
	logger   *zap.Logger
}

// New installs a global tracer provider when cfg.Enabled. Exporter setup failures
// degrade to no tracing rather than failing startup.
func New(ctx context.Context, cfg Config, logger *zap.Logger, opts ...Option) *Telemetry {
	t := &Telemetry{logger: logger}
	if !cfg.Enabled {
		return t
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	exp := o.exporter
	if exp == nil {
		var err error
		exp, err = newExporter(ctx, cfg)
		if err != nil {
			logger.Warn("Tracing disabled: exporter setup failed", zap.Error(err))
			return t
		}
	}

	spanOpt := trace.WithBatcher(exp)
	if o.syncer {
		spanOpt = trace.WithSyncer(exp)
	}

	t.provider = trace.NewTracerProvider(
		spanOpt,
		trace.WithResource(newResource(cfg)),
		trace.WithSampler(trace.ParentBased(sampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(t.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("Tracing enabled",
		zap.String("endpoint", cfg.Endpoint),
		zap.Float64("sample_rate", cfg.SampleRate),
	)
	return t
}

// Enabled reports whether spans are being exported.
func (t *Telemetry) Enabled() bool { return t != nil && t.provider != nil }

// Tracer returns a tracer from the installed provider, or the global one.
func (t *Telemetry) Tracer(name string) oteltrace.Tracer {
	if !t.Enabled() {
		return otel.Tracer(name)
	}
	return t.provider.Tracer(name)
}

// Shutdown flushes pending spans.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.Enabled() {
		return nil
	}
	if err := t.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("trace provider shutdown: %w", err)
	}
	return nil
}

func newExporter(ctx context.Context, cfg Config) (trace.SpanExporter, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(stripScheme(cfg.Endpoint))}
	if cfg.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating trace exporter: %w", err)
	}
	return exp, nil
}

// newResource builds a schemaless resource so it never conflicts with the SDK default schema.
func newResource(cfg Config) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = "newsdex"
	}
	attrs := []attribute.KeyValue{attribute.String("service.name", name)}
	if cfg.ServiceVersion != "" {
		attrs = append(attrs, attribute.String("service.version", cfg.ServiceVersion))
	}
	return resource.NewSchemaless(attrs...)
}

func sampler(rate float64) trace.Sampler {
	switch {
	case rate >= 1:
		return trace.AlwaysSample()
	case rate <= 0:
		return trace.NeverSample()
	default:
		return trace.TraceIDRatioBased(rate)
	}
}

func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	return strings.TrimPrefix(endpoint, "http://")
}
