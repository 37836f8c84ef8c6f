package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.trai.ch/bake/internal/core/ports"
)

// Setup installs a global tracer provider whose spans are reported to renderer.
// The returned function shuts the provider down.
func Setup(renderer ports.Renderer) (*sdktrace.TracerProvider, func(context.Context) error) {
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithSpanProcessor(NewBridge(renderer)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown
}
