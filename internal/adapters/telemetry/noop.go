package telemetry

import (
	"context"

	"go.trai.ch/bake/internal/core/ports"
)

// NoOpTracer is a ports.Tracer that records nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new NoOpTracer.
func NewNoOpTracer() *NoOpTracer {
	return &NoOpTracer{}
}

// Start returns ctx and a span that discards everything.
func (t *NoOpTracer) Start(ctx context.Context, _ string, _ ...ports.SpanOption) (context.Context, ports.Span) {
	return ctx, NoOpSpan{}
}

// EmitPlan does nothing.
func (t *NoOpTracer) EmitPlan(context.Context, []string, map[string][]string, []string) {}

// NoOpSpan is a ports.Span that discards everything.
type NoOpSpan struct{}

// End does nothing.
func (NoOpSpan) End() {}

// RecordError does nothing.
func (NoOpSpan) RecordError(error) {}

// SetAttribute does nothing.
func (NoOpSpan) SetAttribute(string, any) {}

// Write discards p.
func (NoOpSpan) Write(p []byte) (int, error) { return len(p), nil }
