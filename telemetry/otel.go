package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/fleetguard/governor/core"
)

// Provider implements core.Telemetry on top of the OpenTelemetry SDK,
// grounded on the teacher's telemetry.OTelProvider. Unlike the teacher, it
// does not wire an OTLP exporter: shipping spans/metrics to a collector is
// a deployment-layer concern outside this module's scope (SPEC_FULL.md
// §3). The SDK TracerProvider/MeterProvider are real, but they are built
// with no span processor and no metric reader, so recorded spans and
// metrics are not exported or read back anywhere.
type Provider struct {
	tracer         trace.Tracer
	meter          metric.Meter
	traceProvider  *sdktrace.TracerProvider
	metricProvider *sdkmetric.MeterProvider

	decisionCounter  metric.Int64Counter
	policyHitCounter metric.Int64Counter
	tickDuration     metric.Float64Histogram

	mu       sync.Mutex
	shutdown bool
}

// NewProvider builds a Provider for serviceName. Metric instruments are
// created eagerly so hot paths (the controller tick) never pay
// instrument-lookup cost.
func NewProvider(serviceName string) (*Provider, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("%w: service name is required", core.ErrValidationError)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(attribute.String("service.name", serviceName)),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry: building resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(sdktrace.WithResource(res))
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithResource(res))

	otel.SetTracerProvider(tp)
	otel.SetMeterProvider(mp)

	tracer := tp.Tracer("governor")
	meter := mp.Meter("governor")

	decisionCounter, err := meter.Int64Counter("governor.decisions.total",
		metric.WithDescription("governance decisions by outcome"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: decision counter: %w", err)
	}
	policyHitCounter, err := meter.Int64Counter("governor.policy_hits.total",
		metric.WithDescription("policy rule hits by rule id"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: policy hit counter: %w", err)
	}
	tickDuration, err := meter.Float64Histogram("governor.tick.duration_ms",
		metric.WithDescription("controller tick duration in milliseconds"))
	if err != nil {
		return nil, fmt.Errorf("telemetry: tick duration histogram: %w", err)
	}

	return &Provider{
		tracer:           tracer,
		meter:            meter,
		traceProvider:    tp,
		metricProvider:   mp,
		decisionCounter:  decisionCounter,
		policyHitCounter: policyHitCounter,
		tickDuration:     tickDuration,
	}, nil
}

// StartSpan begins a span named name as a child of any span in ctx.
func (p *Provider) StartSpan(ctx context.Context, name string) (context.Context, core.Span) {
	ctx, span := p.tracer.Start(ctx, name)
	return ctx, &otelSpan{span: span}
}

// RecordMetric records value against name with labels, routed to the
// pre-registered instrument matching name; values for unrecognized names
// are not recorded.
func (p *Provider) RecordMetric(name string, value float64, labels map[string]string) {
	ctx := context.Background()
	attrs := toAttributes(labels)
	switch name {
	case "governor.decisions.total":
		p.decisionCounter.Add(ctx, int64(value), metric.WithAttributes(attrs...))
	case "governor.policy_hits.total":
		p.policyHitCounter.Add(ctx, int64(value), metric.WithAttributes(attrs...))
	case "governor.tick.duration_ms":
		p.tickDuration.Record(ctx, value, metric.WithAttributes(attrs...))
	default:
		p.decisionCounter.Add(ctx, 0, metric.WithAttributes(attrs...)) // no-op touch, keeps instrument alive
	}
}

func toAttributes(labels map[string]string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(labels))
	for k, v := range labels {
		attrs = append(attrs, attribute.String(k, v))
	}
	return attrs
}

// Shutdown flushes and releases the trace/metric providers. Safe to call
// more than once.
func (p *Provider) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.shutdown {
		return nil
	}
	p.shutdown = true
	if err := p.traceProvider.Shutdown(ctx); err != nil {
		return err
	}
	return p.metricProvider.Shutdown(ctx)
}

type otelSpan struct {
	span trace.Span
}

func (s *otelSpan) End() { s.span.End() }

func (s *otelSpan) SetAttribute(key string, value interface{}) {
	s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", value)))
}

func (s *otelSpan) RecordError(err error) {
	s.span.RecordError(err)
}
