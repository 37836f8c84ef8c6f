package linear_test

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/muesli/termenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/adapters/linear"
)

func newRenderer(opts ...linear.Option) (*linear.Renderer, *bytes.Buffer, *bytes.Buffer) {
	var stdout, stderr bytes.Buffer
	opts = append([]linear.Option{linear.WithProfile(termenv.Ascii)}, opts...)
	return linear.NewRenderer(&stdout, &stderr, opts...), &stdout, &stderr
}

func TestRenderer_TaskLifecycle(t *testing.T) {
	r, stdout, stderr := newRenderer()
	require.NoError(t, r.Start(context.Background()))

	r.OnPlanEmit([]string{"A", "B"}, map[string][]string{"B": {"A"}}, []string{"App"})
	assert.Equal(t, "Planning 2 task(s) for App\n", stderr.String())
	stderr.Reset()

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r.OnTaskStart("span1", "", "CompileC main.o", start)
	r.OnTaskLog("span1", []byte("first line\nsecond"))
	r.OnTaskLog("span1", []byte(" line\r\n"))
	r.OnTaskComplete("span1", start.Add(1500*time.Millisecond), nil)

	assert.Equal(t, "[CompileC main.o] first line\n[CompileC main.o] second line\n", stdout.String())
	assert.Equal(t, "[CompileC main.o] →\n[CompileC main.o] ✓ 1.5s\n", stderr.String())

	require.NoError(t, r.Stop())
	require.NoError(t, r.Wait())
}

func TestRenderer_PartialLineFlushedOnComplete(t *testing.T) {
	r, stdout, _ := newRenderer()
	start := time.Now()

	r.OnTaskStart("span1", "", "task", start)
	r.OnTaskLog("span1", []byte("partial"))
	assert.Empty(t, stdout.String())

	r.OnTaskComplete("span1", start, nil)
	assert.Equal(t, "[task] partial\n", stdout.String())
}

func TestRenderer_PartialLineFlushedOnStop(t *testing.T) {
	r, stdout, _ := newRenderer()

	r.OnTaskStart("span1", "", "task", time.Now())
	r.OnTaskLog("span1", []byte("dangling"))
	require.NoError(t, r.Stop())

	assert.Equal(t, "[task] dangling\n", stdout.String())
}

func TestRenderer_Failure(t *testing.T) {
	r, _, stderr := newRenderer()
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	r.OnTaskStart("span1", "", "Ld App", start)
	r.OnTaskComplete("span1", start.Add(time.Second), errors.New("exit status 1"))

	assert.Contains(t, stderr.String(), "[Ld App] ✗ failed after 1s: exit status 1")
}

func TestRenderer_UnknownSpan(t *testing.T) {
	r, stdout, stderr := newRenderer()

	r.OnTaskLog("missing", []byte("line\n"))
	r.OnTaskComplete("missing", time.Now(), nil)

	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())
}

func TestRenderer_Quiet(t *testing.T) {
	r, stdout, stderr := newRenderer(linear.Quiet())
	start := time.Now()

	r.OnPlanEmit([]string{"ok", "bad"}, nil, nil)
	r.OnTaskStart("s1", "", "ok", start)
	r.OnTaskLog("s1", []byte("fine\n"))
	r.OnTaskComplete("s1", start, nil)
	assert.Empty(t, stdout.String())
	assert.Empty(t, stderr.String())

	r.OnTaskStart("s2", "", "bad", start)
	r.OnTaskLog("s2", []byte("broken\n"))
	r.OnTaskComplete("s2", start, errors.New("exit status 2"))
	assert.Equal(t, "[bad] broken\n", stdout.String())
	assert.Contains(t, stderr.String(), "[bad] ✗ failed")
}
