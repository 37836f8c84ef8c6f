// Package linear provides a line-buffered renderer printing task output with task name prefixes.
package linear

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/muesli/termenv"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/ui/output"
	"go.trai.ch/bake/internal/ui/style"
)

var _ ports.Renderer = (*Renderer)(nil)

// Renderer implements ports.Renderer with chronological, prefixed lines.
// Task output goes to stdout; progress and status lines go to stderr.
type Renderer struct {
	stdout io.Writer
	stderr io.Writer
	output *termenv.Output
	quiet  bool

	mu    sync.Mutex
	tasks map[string]*taskState
}

type taskState struct {
	name      string
	startTime time.Time
	partial   []byte
	// lines holds the output of a task in quiet mode until it is known to have failed.
	lines [][]byte
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithProfile sets the color profile of status lines.
func WithProfile(p termenv.Profile) Option {
	return func(r *Renderer) {
		r.output = output.NewWithProfile(r.stderr, func() termenv.Profile { return p })
	}
}

// Quiet suppresses everything but the output and status of failed tasks.
func Quiet() Option {
	return func(r *Renderer) { r.quiet = true }
}

// NewRenderer creates a Renderer. Nil writers default to os.Stdout and os.Stderr.
func NewRenderer(stdout, stderr io.Writer, opts ...Option) *Renderer {
	if stdout == nil {
		stdout = os.Stdout
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	r := &Renderer{
		stdout: stdout,
		stderr: stderr,
		output: output.NewWithProfile(stderr, output.ColorProfileANSI),
		tasks:  make(map[string]*taskState),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start does nothing; the renderer writes synchronously.
func (r *Renderer) Start(_ context.Context) error {
	return nil
}

// Stop flushes partial lines of tasks that are still running.
func (r *Renderer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, task := range r.tasks {
		r.flushPartialLocked(task)
	}
	return nil
}

// Wait does nothing; the renderer writes synchronously.
func (r *Renderer) Wait() error {
	return nil
}

// OnPlanEmit prints the number of planned tasks.
func (r *Renderer) OnPlanEmit(tasks []string, _ map[string][]string, targets []string) {
	if r.quiet {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	what := "the build"
	if len(targets) > 0 {
		what = strings.Join(targets, ", ")
	}
	_, _ = fmt.Fprintf(r.stderr, "Planning %d task(s) for %s\n", len(tasks), what)
}

// OnTaskStart prints the start of a task.
func (r *Renderer) OnTaskStart(spanID, _ string, name string, startTime time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tasks[spanID] = &taskState{name: name, startTime: startTime}
	if r.quiet {
		return
	}
	prefix := r.output.String(r.prefix(name)).Faint().String()
	_, _ = fmt.Fprintf(r.stderr, "%s %s\n", prefix, style.Arrow)
}

// OnTaskLog prints the complete lines in data. Partial lines wait for the rest of the line.
func (r *Renderer) OnTaskLog(spanID string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[spanID]
	if !ok {
		return
	}

	task.partial = append(task.partial, data...)
	for {
		i := bytes.IndexByte(task.partial, '\n')
		if i < 0 {
			break
		}
		r.lineLocked(task, task.partial[:i])
		task.partial = task.partial[i+1:]
	}
}

// OnTaskComplete prints the remaining output and the outcome of the task.
func (r *Renderer) OnTaskComplete(spanID string, endTime time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[spanID]
	if !ok {
		return
	}
	delete(r.tasks, spanID)
	r.flushPartialLocked(task)

	duration := endTime.Sub(task.startTime).Round(time.Millisecond)
	prefix := r.prefix(task.name)
	if err != nil {
		for _, line := range task.lines {
			r.printLocked(task.name, line)
		}
		symbol := r.output.String(style.Cross).Foreground(r.output.Color(string(style.Red))).String()
		_, _ = fmt.Fprintf(r.stderr, "%s %s failed after %v: %v\n", prefix, symbol, duration, err)
		return
	}
	if r.quiet {
		return
	}
	symbol := r.output.String(style.Check).Foreground(r.output.Color(string(style.Green))).String()
	_, _ = fmt.Fprintf(r.stderr, "%s %s %v\n", prefix, symbol, duration)
}

func (r *Renderer) flushPartialLocked(task *taskState) {
	if len(task.partial) > 0 {
		r.lineLocked(task, task.partial)
		task.partial = nil
	}
}

func (r *Renderer) lineLocked(task *taskState, line []byte) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if len(line) == 0 {
		return
	}
	if r.quiet {
		task.lines = append(task.lines, bytes.Clone(line))
		return
	}
	r.printLocked(task.name, line)
}

func (r *Renderer) printLocked(name string, line []byte) {
	_, _ = fmt.Fprintf(r.stdout, "%s %s\n", r.prefix(name), line)
}

func (r *Renderer) prefix(name string) string {
	return "[" + name + "]"
}
