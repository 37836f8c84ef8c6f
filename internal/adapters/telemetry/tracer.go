package telemetry

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.trai.ch/bake/internal/core/ports"
)

// InstrumentationName names the tracer of build tasks.
const InstrumentationName = "go.trai.ch/bake"

// AttrTarget is the span attribute holding the owning target of a task.
const AttrTarget = "bake.target"

var (
	_ ports.Tracer = (*OTelTracer)(nil)
	_ ports.Span   = (*OTelSpan)(nil)
)

// OTelTracer implements ports.Tracer using OpenTelemetry.
// Span output is batched and forwarded to the renderer, when one is attached.
type OTelTracer struct {
	tracer trace.Tracer

	mu       sync.RWMutex
	renderer ports.Renderer
}

// NewOTelTracer creates a tracer from the global provider.
func NewOTelTracer(name string) *OTelTracer {
	return &OTelTracer{tracer: otel.Tracer(name)}
}

// NewOTelTracerFromProvider creates a tracer from tp.
func NewOTelTracerFromProvider(tp trace.TracerProvider, name string) *OTelTracer {
	return &OTelTracer{tracer: tp.Tracer(name)}
}

// WithRenderer attaches the renderer receiving plans and task output.
func (t *OTelTracer) WithRenderer(r ports.Renderer) *OTelTracer {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.renderer = r
	return t
}

func (t *OTelTracer) currentRenderer() ports.Renderer {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.renderer
}

// Start creates a new span.
func (t *OTelTracer) Start(ctx context.Context, name string, opts ...ports.SpanOption) (context.Context, ports.Span) {
	cfg := &ports.SpanConfig{}
	for _, opt := range opts {
		opt(cfg)
	}

	var startOpts []trace.SpanStartOption
	if cfg.Target != "" {
		startOpts = append(startOpts, trace.WithAttributes(attribute.String(AttrTarget, cfg.Target)))
	}
	ctx, span := t.tracer.Start(ctx, name, startOpts...)

	s := &OTelSpan{span: span}
	if r := t.currentRenderer(); r != nil {
		spanID := span.SpanContext().SpanID().String()
		s.batcher = NewBatchProcessor(0, 0, func(data []byte) {
			r.OnTaskLog(spanID, data)
		})
	}
	return ctx, s
}

// EmitPlan records the plan on the current span and hands it to the renderer.
func (t *OTelTracer) EmitPlan(ctx context.Context, taskNames []string, deps map[string][]string, targets []string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent("plan_emitted", trace.WithAttributes(
			attribute.StringSlice("tasks", taskNames),
			attribute.StringSlice("targets", targets),
		))
	}

	if r := t.currentRenderer(); r != nil {
		r.OnPlanEmit(taskNames, deps, targets)
	}
}

// OTelSpan implements ports.Span using OpenTelemetry.
type OTelSpan struct {
	span    trace.Span
	batcher *BatchProcessor
}

// End flushes pending output and completes the span.
func (s *OTelSpan) End() {
	if s.batcher != nil {
		_ = s.batcher.Close()
	}
	s.span.End()
}

// RecordError records err and marks the span failed.
func (s *OTelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

// SetAttribute adds a key-value pair to the span.
func (s *OTelSpan) SetAttribute(key string, value any) {
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
	case []string:
		s.span.SetAttributes(attribute.StringSlice(key, v))
	default:
		s.span.SetAttributes(attribute.String(key, fmt.Sprintf("%v", v)))
	}
}

// Write sends output to the renderer, or records it as a span event when there is none.
func (s *OTelSpan) Write(p []byte) (int, error) {
	if s.batcher != nil {
		return s.batcher.Write(p)
	}
	s.span.AddEvent("log", trace.WithAttributes(attribute.String("message", string(p))))
	return len(p), nil
}
