package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "recon-orchestrator"

// Tracer wraps OpenTelemetry tracing for the orchestrator.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, fmt.Sprintf("recon.%s", name),
		trace.WithAttributes(attrs...),
	)
}

// SpanFromContext returns the current span from the context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// Common attribute keys for orchestrator tracing.
var (
	AttrRunID  = attribute.Key("recon.run.id")
	AttrTool   = attribute.Key("recon.tool")
	AttrTarget = attribute.Key("recon.target")
	AttrPlan   = attribute.Key("recon.plan")
	AttrOrigin = attribute.Key("recon.result.origin")
)
