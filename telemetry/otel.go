package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

// Span is the narrow tracing capability the scheduler uses to bracket one
// tick's work; kept separate from core.Logger so a NoOp implementation can
// be swapped in without dragging OTel into every package that logs.
type Span interface {
	End()
	SetAttribute(key string, value interface{})
	RecordError(err error)
}

// Provider is the local-only OpenTelemetry integration point: stdout
// exporters only, no collector endpoint, per SPEC_FULL.md §B (this
// supervisor has no inbound HTTP surface to ship traces for, and its
// locator cache / session log are single-host in-memory state with no
// distributed-metrics backend to report to).
type Provider struct {
	tracer         trace.Tracer
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider
	metrics        *MetricInstruments

	shutdownOnce sync.Once
	shutdown     bool
	mu           sync.RWMutex
}

// NewProvider builds a Provider that exports metrics and traces to stdout
// on an interval, suitable for a desktop process with no sidecar collector.
func NewProvider(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("service name cannot be empty")
	}

	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceNameKey.String(serviceName),
	)

	traceExporter, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	metricExporter, err := stdoutmetric.New(stdoutmetric.WithoutTimestamps())
	if err != nil {
		return nil, fmt.Errorf("create stdout metric exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
		sdkmetric.WithResource(res),
	)

	otel.SetMeterProvider(mp)

	return &Provider{
		tracer:         tp.Tracer("supervisor"),
		traceProvider:  tp,
		metricProvider: mp,
		metrics:        NewMetricInstruments("supervisor"),
	}, nil
}

// StartSpan starts a span, returning a no-op span if the provider has been
// shut down.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, Span) {
	p.mu.RLock()
	shutdown := p.shutdown
	p.mu.RUnlock()
	if shutdown || p.tracer == nil {
		return ctx, &noOpSpan{}
	}

	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// Shutdown flushes and tears down both providers. Idempotent.
func (p *Provider) Shutdown(ctx context.Context) (shutdownErr error) {
	p.shutdownOnce.Do(func() {
		p.mu.Lock()
		p.shutdown = true
		p.mu.Unlock()

		var errs []error
		if err := p.metrics.Shutdown(); err != nil {
			errs = append(errs, err)
		}
		if p.metricProvider != nil {
			if err := p.metricProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if p.traceProvider != nil {
			if err := p.traceProvider.Shutdown(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		if len(errs) > 0 {
			shutdownErr = fmt.Errorf("shutdown errors: %v", errs)
		}
	})
	return shutdownErr
}

type noOpSpan struct{}

func (s *noOpSpan) End()                                       {}
func (s *noOpSpan) SetAttribute(key string, value interface{}) {}
func (s *noOpSpan) RecordError(err error)                      {}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	switch v := value.(type) {
	case string:
		s.span.SetAttributes(attribute.String(key, v))
	case int:
		s.span.SetAttributes(attribute.Int(key, v))
	case int64:
		s.span.SetAttributes(attribute.Int64(key, v))
	case float64:
		s.span.SetAttributes(attribute.Float64(key, v))
	case bool:
		s.span.SetAttributes(attribute.Bool(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

func (s *otelSpan) RecordError(err error) { s.span.RecordError(err) }

// meterInstruments returns p's instrument cache; exported via a method
// rather than a field so registry.go can live in the same package without
// reaching into unexported state from outside it.
func (p *Provider) meterInstruments() *MetricInstruments { return p.metrics }
