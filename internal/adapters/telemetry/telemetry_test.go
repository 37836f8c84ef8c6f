package telemetry_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.trai.ch/bake/internal/adapters/telemetry"
	"go.trai.ch/bake/internal/core/ports"
)

// recordingRenderer is a ports.Renderer test double recording every callback.
type recordingRenderer struct {
	mu        sync.Mutex
	plans     [][]string
	started   []string
	logs      map[string][]byte
	completed map[string]error
}

func newRecordingRenderer() *recordingRenderer {
	return &recordingRenderer{logs: make(map[string][]byte), completed: make(map[string]error)}
}

func (r *recordingRenderer) Start(context.Context) error { return nil }
func (r *recordingRenderer) Stop() error                 { return nil }
func (r *recordingRenderer) Wait() error                 { return nil }

func (r *recordingRenderer) OnPlanEmit(tasks []string, _ map[string][]string, _ []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plans = append(r.plans, tasks)
}

func (r *recordingRenderer) OnTaskStart(_, _, name string, _ time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, name)
}

func (r *recordingRenderer) OnTaskLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs[spanID] = append(r.logs[spanID], data...)
}

func (r *recordingRenderer) OnTaskComplete(spanID string, _ time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed[spanID] = err
}

func TestOTelTracer_SpanLifecycle(t *testing.T) {
	renderer := newRecordingRenderer()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewBridge(renderer)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := telemetry.NewOTelTracerFromProvider(tp, "test").WithRenderer(renderer)

	_, span := tracer.Start(context.Background(), "CompileC main.o", ports.WithTarget("App"))
	_, err := span.Write([]byte("compiling\n"))
	require.NoError(t, err)
	span.RecordError(errors.New("exit status 1"))
	span.End()

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.Equal(t, []string{"CompileC main.o"}, renderer.started)
	require.Len(t, renderer.logs, 1)
	for id, data := range renderer.logs {
		assert.Equal(t, "compiling\n", string(data))
		require.Contains(t, renderer.completed, id)
		assert.EqualError(t, renderer.completed[id], "exit status 1")
	}
}

func TestOTelTracer_Attributes(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	tracer := telemetry.NewOTelTracerFromProvider(tp, "test")
	_, span := tracer.Start(context.Background(), "Ld App", ports.WithTarget("App"))
	span.SetAttribute("bake.task.rule", "Ld")
	span.SetAttribute("count", 3)
	span.SetAttribute("ok", true)
	span.SetAttribute("other", struct{ A int }{1})
	_, _ = span.Write([]byte("linked"))
	span.End()

	ended := sr.Ended()
	require.Len(t, ended, 1)
	attrs := map[string]string{}
	for _, kv := range ended[0].Attributes() {
		attrs[string(kv.Key)] = kv.Value.Emit()
	}
	assert.Equal(t, "App", attrs[telemetry.AttrTarget])
	assert.Equal(t, "Ld", attrs["bake.task.rule"])
	assert.Equal(t, "3", attrs["count"])
	assert.Equal(t, "true", attrs["ok"])
	assert.Equal(t, "{1}", attrs["other"])

	events := ended[0].Events()
	require.Len(t, events, 1)
	assert.Equal(t, "log", events[0].Name)
}

func TestOTelTracer_EmitPlan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	renderer := newRecordingRenderer()
	tracer := telemetry.NewOTelTracerFromProvider(tp, "test").WithRenderer(renderer)

	ctx, root := tp.Tracer("test").Start(context.Background(), "build")
	tracer.EmitPlan(ctx, []string{"A", "B"}, map[string][]string{"B": {"A"}}, []string{"App"})
	root.End()

	assert.Equal(t, [][]string{{"A", "B"}}, renderer.plans)
	ended := sr.Ended()
	require.Len(t, ended, 1)
	require.Len(t, ended[0].Events(), 1)
	assert.Equal(t, "plan_emitted", ended[0].Events()[0].Name)
}

func TestBridge_StatusWithoutDescription(t *testing.T) {
	renderer := newRecordingRenderer()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewBridge(renderer)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	_, span := tp.Tracer("test").Start(context.Background(), "task")
	span.SetStatus(codes.Error, "")
	span.End()

	require.Len(t, renderer.completed, 1)
	for _, err := range renderer.completed {
		assert.EqualError(t, err, "task failed")
	}
}

func TestBridge_NilRenderer(t *testing.T) {
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(telemetry.NewBridge(nil)))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	assert.NotPanics(t, func() {
		_, span := tp.Tracer("test").Start(context.Background(), "task")
		span.End()
	})
}

func TestSetup(t *testing.T) {
	renderer := newRecordingRenderer()
	_, shutdown := telemetry.Setup(renderer)
	t.Cleanup(func() { _ = shutdown(context.Background()) })

	_, span := telemetry.NewOTelTracer("test").Start(context.Background(), "global")
	span.End()

	assert.Equal(t, []string{"global"}, renderer.started)
}

func TestNoOpTracer(t *testing.T) {
	tracer := telemetry.NewNoOpTracer()
	ctx := context.Background()

	newCtx, span := tracer.Start(ctx, "noop")
	assert.Equal(t, ctx, newCtx)
	n, err := span.Write([]byte("data"))
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	span.SetAttribute("k", "v")
	span.RecordError(errors.New("ignored"))
	span.End()
	tracer.EmitPlan(ctx, []string{"a"}, nil, nil)
}
