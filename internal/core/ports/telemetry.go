package ports

import (
	"context"
	"io"
)

//go:generate go run go.uber.org/mock/mockgen -source=telemetry.go -destination=mocks/mock_telemetry.go -package=mocks

// Tracer is the entry point for creating spans.
type Tracer interface {
	// Start creates a new span.
	Start(ctx context.Context, name string, opts ...SpanOption) (context.Context, Span)
	// EmitPlan signals that a set of tasks is planned for execution.
	// deps maps each task to the tasks it waits for; targets are the requested targets.
	EmitPlan(ctx context.Context, taskNames []string, deps map[string][]string, targets []string)
}

// Span represents a unit of work.
type Span interface {
	io.Writer
	// End completes the span.
	End()
	// RecordError records an error for the span.
	RecordError(err error)
	// SetAttribute adds a key-value pair to the span.
	SetAttribute(key string, value any)
}

// SpanConfig holds configuration for a starting span.
type SpanConfig struct {
	// Target is the name of the configured target the span belongs to.
	Target string
}

// SpanOption is a functional option for configuring a span.
type SpanOption func(*SpanConfig)

// WithTarget attaches the owning target name to a span.
func WithTarget(name string) SpanOption {
	return func(c *SpanConfig) {
		c.Target = name
	}
}
