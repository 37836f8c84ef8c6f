// Package scheduler executes build descriptions incrementally.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime"
	"time"

	"github.com/google/uuid"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// TaskStatus represents the status of a task within one build operation.
type TaskStatus string

const (
	// StatusPending indicates the task is waiting for its predecessors.
	StatusPending TaskStatus = "Pending"
	// StatusRunning indicates the task is being checked or executed.
	StatusRunning TaskStatus = "Running"
	// StatusCompleted indicates the task ran or was up to date.
	StatusCompleted TaskStatus = "Completed"
	// StatusFailed indicates the task execution failed.
	StatusFailed TaskStatus = "Failed"
	// StatusBlocked indicates the task was not started because a predecessor failed.
	StatusBlocked TaskStatus = "Blocked"
	// StatusCancelled indicates the task was interrupted by cancellation.
	StatusCancelled TaskStatus = "Cancelled"
)

// Options controls one build operation.
type Options struct {
	// Parallelism caps concurrently executing tasks; zero selects the number of CPUs.
	Parallelism int
	// ContinueBuildingAfterErrors keeps unrelated subgraphs running after a failure.
	ContinueBuildingAfterErrors bool
	// DryRun reports the tasks that would run without running them or touching the store.
	DryRun bool
	// Command selects the build variant; prepareForIndexing runs only flagged tasks.
	Command domain.BuildCommand
}

// OptionsFor derives the execution options of a request.
func OptionsFor(req *domain.BuildRequest) Options {
	return Options{
		Parallelism:                 req.Parallelism,
		ContinueBuildingAfterErrors: req.ContinueBuildingAfterErrors,
		DryRun:                      req.UseDryRun,
		Command:                     req.Command,
	}
}

// Scheduler manages the execution of tasks in a build description.
type Scheduler struct {
	executor ports.Executor
	hasher   ports.Hasher
	tracer   ports.Tracer
	logger   ports.Logger

	now func() time.Time
}

// NewScheduler creates a new Scheduler with the given dependencies.
func NewScheduler(
	executor ports.Executor,
	hasher ports.Hasher,
	tracer ports.Tracer,
	logger ports.Logger,
) *Scheduler {
	return &Scheduler{
		executor: executor,
		hasher:   hasher,
		tracer:   tracer,
		logger:   logger,
		now:      time.Now,
	}
}

// WithTracer returns a copy of s that reports task spans to tracer.
func (s *Scheduler) WithTracer(tracer ports.Tracer) *Scheduler {
	clone := *s
	clone.tracer = tracer
	return &clone
}

// Run executes every task of desc that is not up to date according to store
// and streams the build events to sink.
//
// The returned error is non-nil only when a task failed; it satisfies errors.Is(err, domain.ErrBuildFailed).
// A cancelled build ends with Outcome cancelled and a nil error.
func (s *Scheduler) Run(
	ctx context.Context,
	desc *domain.BuildDescription,
	store ports.SignatureStore,
	opts Options,
	sink ports.BuildEventSink,
) (*domain.BuildResult, error) {
	events := newEmitter(sink)
	events.emit(domain.BuildEvent{Kind: domain.EventBuildStarted})
	events.emit(domain.BuildEvent{
		Kind:                  domain.EventBuildReportedPathMap,
		CopiedPathMap:         maps.Clone(desc.CopiedPathMap),
		GeneratedFilesPathMap: maps.Clone(desc.GeneratedFilesPathMap),
	})

	state := s.newRunState(desc, store, opts, events)
	s.emitPlan(ctx, state)

	if ctx.Err() != nil {
		state.cancelled = true
	} else {
		state.runExecutionLoop(ctx)
	}

	return state.finish()
}

// schedulerRunState holds the state for a single build operation.
type schedulerRunState struct {
	s       *Scheduler
	store   ports.SignatureStore
	graph   *domain.Graph
	tasks   []*domain.Task
	opts    Options
	events  *emitter
	buildID string

	inDegree    []int
	ready       []int
	status      []TaskStatus
	poisoned    []bool
	generations []string

	active      int
	parallelism int
	resultsCh   chan result
	errs        []error
	cancelled   bool
	result      domain.BuildResult
}

type result struct {
	idx        int
	generation string
	executed   bool
	upToDate   bool
	cancelled  bool
	err        error
}

func (s *Scheduler) newRunState(
	desc *domain.BuildDescription,
	store ports.SignatureStore,
	opts Options,
	events *emitter,
) *schedulerRunState {
	graph := desc.Graph()
	tasks := graph.Tasks()

	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	state := &schedulerRunState{
		s:           s,
		store:       store,
		graph:       graph,
		tasks:       tasks,
		opts:        opts,
		events:      events,
		buildID:     uuid.NewString(),
		inDegree:    make([]int, len(tasks)),
		status:      make([]TaskStatus, len(tasks)),
		poisoned:    make([]bool, len(tasks)),
		generations: make([]string, len(tasks)),
		parallelism: parallelism,
		resultsCh:   make(chan result, len(tasks)),
	}

	for i, t := range tasks {
		state.status[i] = StatusPending
		state.inDegree[i] = len(graph.Predecessors(t))
		if state.inDegree[i] == 0 {
			state.ready = append(state.ready, i)
		}
		if !t.IsGate() && state.included(t) {
			events.total++
		}
	}
	return state
}

// emitPlan announces the non-gate tasks to the tracer. Dependencies through gates are flattened.
func (s *Scheduler) emitPlan(ctx context.Context, state *schedulerRunState) {
	var (
		names   []string
		targets []string
		seen    = make(map[string]bool)
	)
	deps := make(map[string][]string)
	for _, t := range state.tasks {
		if t.IsGate() || !state.included(t) {
			continue
		}
		names = append(names, t.Key())
		deps[t.Key()] = state.workPredecessors(t)
		if name := t.TargetName(); name != "" && !seen[name] {
			seen[name] = true
			targets = append(targets, name)
		}
	}
	s.tracer.EmitPlan(ctx, names, deps, targets)
}

func (state *schedulerRunState) workPredecessors(t *domain.Task) []string {
	var out []string
	visited := make(map[*domain.Task]bool)
	var walk func(*domain.Task)
	walk = func(cur *domain.Task) {
		for _, p := range state.graph.Predecessors(cur) {
			if visited[p] {
				continue
			}
			visited[p] = true
			if p.IsGate() || !state.included(p) {
				walk(p)
				continue
			}
			out = append(out, p.Key())
		}
	}
	walk(t)
	return out
}

// included reports whether the build variant considers t at all.
func (state *schedulerRunState) included(t *domain.Task) bool {
	if state.opts.Command == domain.CommandPrepareForIndexing {
		return t.IsGate() || t.PreparesForIndexing
	}
	return true
}

func (state *schedulerRunState) runExecutionLoop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			state.cancelled = true
		}
		if !state.cancelled {
			state.schedule(ctx)
		}

		if state.active == 0 {
			return
		}

		select {
		case res := <-state.resultsCh:
			state.handleResult(res)
		case <-ctx.Done():
			state.cancelled = true
			for state.active > 0 {
				state.handleResult(<-state.resultsCh)
			}
			return
		}
	}
}

// schedule starts ready tasks up to the parallelism limit. Gates, excluded and blocked
// tasks settle immediately without occupying a slot.
func (state *schedulerRunState) schedule(ctx context.Context) {
	for len(state.ready) > 0 {
		if ctx.Err() != nil {
			state.cancelled = true
			return
		}

		idx := state.ready[0]
		t := state.tasks[idx]

		switch {
		case state.poisoned[idx]:
			state.ready = state.ready[1:]
			state.status[idx] = StatusBlocked
			state.release(idx, true)
			continue
		case t.IsGate():
			state.ready = state.ready[1:]
			state.status[idx] = StatusCompleted
			state.release(idx, false)
			continue
		case !state.included(t):
			state.ready = state.ready[1:]
			state.status[idx] = StatusCompleted
			state.generations[idx] = state.storedGeneration(t)
			state.release(idx, false)
			continue
		}

		if state.active >= state.parallelism {
			return
		}
		state.ready = state.ready[1:]
		state.status[idx] = StatusRunning
		state.active++

		job := state.newTaskJob(idx)
		go func() {
			state.resultsCh <- job.run(ctx)
		}()
	}
}

func (state *schedulerRunState) storedGeneration(t *domain.Task) string {
	rec, err := state.store.Get(t.Key())
	if err != nil || rec == nil {
		return ""
	}
	return rec.Generation
}

func (state *schedulerRunState) handleResult(res result) {
	state.active--
	t := state.tasks[res.idx]

	switch {
	case res.cancelled:
		state.status[res.idx] = StatusCancelled
	case res.err != nil:
		state.status[res.idx] = StatusFailed
		state.errs = append(state.errs, zerr.With(domain.Wrap(domain.ErrTaskExecutionFailed, res.err), "task", t.Key()))
		state.release(res.idx, true)
	default:
		state.status[res.idx] = StatusCompleted
		state.generations[res.idx] = res.generation
		if res.executed {
			state.result.Executed++
		}
		if res.upToDate {
			state.result.UpToDate++
		}
		state.release(res.idx, false)
	}
}

// release decrements the in-degree of the successors of a settled task.
// A failed or blocked task poisons every successor when the build stops after errors,
// and only the successors consuming its outputs otherwise.
func (state *schedulerRunState) release(idx int, failed bool) {
	t := state.tasks[idx]
	for _, succ := range state.graph.Successors(t) {
		j := state.graph.Index(succ)
		if failed && (!state.opts.ContinueBuildingAfterErrors || consumes(succ, t)) {
			state.poisoned[j] = true
		}
		state.inDegree[j]--
		if state.inDegree[j] == 0 {
			state.ready = append(state.ready, j)
		}
	}
}

func consumes(reader, producer *domain.Task) bool {
	for _, n := range producer.Outputs {
		if reader.ReadsNode(n) {
			return true
		}
	}
	return false
}

func (state *schedulerRunState) finish() (*domain.BuildResult, error) {
	if !state.cancelled {
		if stuck := state.pending(); len(stuck) > 0 {
			err := zerr.With(zerr.Wrap(domain.ErrTaskCycle, "tasks never became ready"), "tasks", stuck)
			state.errs = append(state.errs, err)
		}
	}
	state.result.Errors = state.errs

	switch {
	case state.cancelled:
		state.result.Outcome = domain.OutcomeCancelled
		state.events.emit(domain.BuildEvent{Kind: domain.EventBuildCancelled})
		return &state.result, nil
	case len(state.errs) > 0:
		state.result.Outcome = domain.OutcomeFailed
		state.events.emit(domain.BuildEvent{Kind: domain.EventBuildCompleted, Outcome: domain.OutcomeFailed})
		msg := fmt.Sprintf("%d task(s) failed", len(state.errs))
		return &state.result, zerr.With(zerr.Wrap(domain.ErrBuildFailed, msg), "cause", errors.Join(state.errs...).Error())
	default:
		state.result.Outcome = domain.OutcomeSucceeded
		state.events.emit(domain.BuildEvent{Kind: domain.EventBuildCompleted, Outcome: domain.OutcomeSucceeded})
		return &state.result, nil
	}
}

// pending lists the tasks that were never scheduled. Only a dependency cycle leaves any behind.
func (state *schedulerRunState) pending() []string {
	var keys []string
	for i, st := range state.status {
		if st == StatusPending {
			keys = append(keys, state.tasks[i].Key())
		}
	}
	return keys
}
