package scheduler

import (
	"bytes"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
)

// emitter serializes events from concurrently running tasks onto one sink.
type emitter struct {
	mu      sync.Mutex
	sink    ports.BuildEventSink
	total   int
	started int
}

func newEmitter(sink ports.BuildEventSink) *emitter {
	if sink == nil {
		sink = ports.BuildEventSinkFunc(func(domain.BuildEvent) {})
	}
	return &emitter{sink: sink}
}

func (e *emitter) emit(ev domain.BuildEvent) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sink.Emit(ev)
}

// taskStarted emits the started event of t followed by the updated progress counters.
func (e *emitter) taskStarted(t *domain.Task) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.started++
	e.sink.Emit(domain.BuildEvent{Kind: domain.EventTaskHadEvent, Task: t, TaskEvent: domain.TaskStarted})
	e.sink.Emit(domain.BuildEvent{
		Kind:         domain.EventTotalProgressChanged,
		TargetName:   t.TargetName(),
		StartedCount: e.started,
		MaxCount:     e.total,
	})
}

func (e *emitter) taskEvent(t *domain.Task, kind domain.TaskEventKind) {
	e.emit(domain.BuildEvent{Kind: domain.EventTaskHadEvent, Task: t, TaskEvent: kind})
}

func (e *emitter) taskExit(t *domain.Task, status domain.ExitStatus, code int) {
	e.emit(domain.BuildEvent{
		Kind:       domain.EventTaskHadEvent,
		Task:       t,
		TaskEvent:  domain.TaskExit,
		ExitStatus: status,
		ExitCode:   code,
	})
}

// taskOutput fans task output out to the event stream, the task span and a capture buffer
// that is handed to the task type's output parser.
type taskOutput struct {
	mu       sync.Mutex
	task     *domain.Task
	events   *emitter
	span     ports.Span
	captured bytes.Buffer
}

func (w *taskOutput) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.captured.Write(p)
	if _, err := w.span.Write(p); err != nil {
		return 0, err
	}
	w.events.emit(domain.BuildEvent{
		Kind:      domain.EventTaskHadEvent,
		Task:      w.task,
		TaskEvent: domain.TaskHadOutput,
		Output:    bytes.Clone(p),
	})
	return len(p), nil
}

func (w *taskOutput) bytes() []byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return bytes.Clone(w.captured.Bytes())
}
