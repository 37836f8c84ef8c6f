package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
)

// taskJob is everything a worker goroutine needs to check and run one task.
// Producer stamps are captured on the scheduling goroutine, where every producer has settled.
type taskJob struct {
	state *schedulerRunState
	idx   int
	task  *domain.Task

	// producerStamps maps path inputs written by tasks of this build to the producer's generation.
	producerStamps map[domain.Node]string
	// finalWriters maps mutated outputs to the key of the last task of their chain, if not t itself.
	finalWriters map[domain.Node]string
	// rewrites marks tasks writing a mutated node; their generation is unique to this build.
	rewrites bool
}

func (state *schedulerRunState) newTaskJob(idx int) *taskJob {
	t := state.tasks[idx]
	g := state.graph
	job := &taskJob{
		state:          state,
		idx:            idx,
		task:           t,
		producerStamps: make(map[domain.Node]string),
		finalWriters:   make(map[domain.Node]string),
	}

	for _, n := range t.Inputs {
		if n.Kind() != domain.NodeKindPath {
			continue
		}
		var producer *domain.Task
		switch {
		case g.IsMutated(n):
			if prior, ok := g.PriorMutator(t, n); ok {
				producer = prior
			} else if chain := g.MutationChain(n); len(chain) > 0 {
				producer = chain[len(chain)-1]
			}
		default:
			producer, _ = g.Producer(n)
		}
		if producer == nil {
			continue
		}
		if j := g.Index(producer); j >= 0 && state.status[j] == StatusCompleted {
			job.producerStamps[n] = state.generations[j]
		}
	}

	for _, n := range t.Outputs {
		if !g.IsMutated(n) {
			continue
		}
		job.rewrites = true
		if chain := g.MutationChain(n); len(chain) > 0 && chain[len(chain)-1] != t {
			job.finalWriters[n] = chain[len(chain)-1].Key()
		}
	}
	return job
}

func (j *taskJob) run(ctx context.Context) result {
	res := result{idx: j.idx}
	s := j.state.s
	t := j.task

	signature := j.signature()
	stamps, err := j.inputStamps()
	if err != nil {
		res.err = err
		return res
	}

	if !j.state.opts.DryRun {
		prev, err := j.state.store.Get(t.Key())
		if err != nil {
			s.logger.Warn(fmt.Sprintf("ignoring stored record of %s: %v", t.Key(), err))
			prev = nil
		}
		if prev != nil && j.upToDate(signature, stamps, prev) {
			s.logger.Debug(fmt.Sprintf("%s is up to date", t.Key()))
			res.upToDate = true
			res.generation = prev.Generation
			return res
		}
	}

	if ctx.Err() != nil {
		res.cancelled = true
		return res
	}

	j.state.events.taskStarted(t)
	res.executed = true

	if j.state.opts.DryRun {
		j.state.events.taskEvent(t, domain.TaskCompleted)
		res.generation = s.hasher.Combine("dry-run", j.state.buildID, t.Key())
		return res
	}

	status, code, err := j.execute(ctx)
	j.state.events.taskExit(t, status, code)
	j.state.events.taskEvent(t, domain.TaskCompleted)

	switch {
	case status == domain.ExitCancelled:
		res.cancelled = true
		return res
	case err != nil:
		res.err = err
		return res
	}

	outputs, err := j.outputHashes()
	if err != nil {
		res.err = err
		return res
	}
	res.generation = j.generation(signature, stamps, outputs)

	record := domain.TaskRecord{
		Key:          t.Key(),
		Signature:    signature,
		InputStamps:  stamps,
		OutputHashes: outputs,
		Generation:   res.generation,
		Timestamp:    s.now(),
	}
	if err := j.state.store.Put(record); err != nil {
		s.logger.Warn(fmt.Sprintf("failed to record %s: %v", t.Key(), err))
	}
	return res
}

// execute runs the task under a span. Tasks whose type is unsafe to interrupt never see the cancellation.
func (j *taskJob) execute(ctx context.Context) (domain.ExitStatus, int, error) {
	s := j.state.s
	t := j.task

	spanCtx, span := s.tracer.Start(ctx, t.Key(), ports.WithTarget(t.TargetName()))
	defer span.End()
	span.SetAttribute("bake.task.rule", t.RuleType())

	execCtx := spanCtx
	if t.IsUnsafeToInterrupt() {
		execCtx = context.WithoutCancel(spanCtx)
	}

	out := &taskOutput{task: t, events: j.state.events, span: span}
	err := s.executor.Execute(execCtx, t, out, out)
	if err != nil {
		span.RecordError(err)
		if ctx.Err() != nil && !t.IsUnsafeToInterrupt() {
			return domain.ExitCancelled, exitCode(err), nil
		}
		return domain.ExitFailed, exitCode(err), err
	}

	if t.Type != nil {
		if perr := t.Type.ParseOutput(t, out.bytes()); perr != nil {
			perr = domain.Wrap(domain.ErrTaskOutputParseFailed, perr)
			span.RecordError(perr)
			return domain.ExitFailed, 0, perr
		}
	}
	return domain.ExitSucceeded, 0, nil
}

func exitCode(err error) int {
	var coder ports.ExitCoder
	if errors.As(err, &coder) {
		return coder.ExitCode()
	}
	return -1
}

// signature combines the static description of the task with its type's contribution.
func (j *taskJob) signature() string {
	h := j.state.s.hasher
	contribution := ""
	if j.task.Type != nil {
		contribution = j.task.Type.SignatureContribution(j.task)
	}
	return h.Combine(h.ComputeSignature(j.task), contribution)
}

// inputStamps records the state of every input the task can observe.
// Virtual nodes only order tasks and carry no stamp.
func (j *taskJob) inputStamps() (map[string]string, error) {
	h := j.state.s.hasher
	stamps := make(map[string]string, len(j.task.Inputs))
	for _, n := range j.task.Inputs {
		switch n.Kind() {
		case domain.NodeKindVirtual:
			continue
		case domain.NodeKindDirectoryTree:
			sum, err := h.ComputeTreeHash(n.Name())
			if err != nil {
				return nil, zerr.With(err, "input", n.String())
			}
			stamps[n.String()] = sum
		default:
			if gen, ok := j.producerStamps[n]; ok {
				stamps[n.String()] = gen
				continue
			}
			sum, err := h.ComputeFileHash(n.Name())
			if err != nil {
				return nil, zerr.With(err, "input", n.String())
			}
			stamps[n.String()] = sum
		}
	}
	return stamps, nil
}

func (j *taskJob) upToDate(signature string, stamps map[string]string, prev *domain.TaskRecord) bool {
	if prev.Signature != signature || !maps.Equal(prev.InputStamps, stamps) {
		return false
	}
	for _, n := range j.task.Outputs {
		if n.IsVirtual() {
			continue
		}
		want := prev.OutputHashes[n.String()]
		if key, ok := j.finalWriters[n]; ok {
			// Intermediate writers of a chain compare against the content the chain ended with.
			final, err := j.state.store.Get(key)
			if err != nil || final == nil {
				return false
			}
			want = final.OutputHashes[n.String()]
		}
		got, err := j.hashOutput(n)
		if err != nil || got == "" || got != want {
			return false
		}
	}
	return true
}

func (j *taskJob) hashOutput(n domain.Node) (string, error) {
	if n.Kind() == domain.NodeKindDirectoryTree {
		return j.state.s.hasher.ComputeTreeHash(n.Name())
	}
	return j.state.s.hasher.ComputeFileHash(n.Name())
}

func (j *taskJob) outputHashes() (map[string]string, error) {
	hashes := make(map[string]string, len(j.task.Outputs))
	for _, n := range j.task.Outputs {
		if n.IsVirtual() {
			continue
		}
		sum, err := j.hashOutput(n)
		if err != nil {
			return nil, zerr.With(err, "output", n.String())
		}
		hashes[n.String()] = sum
	}
	return hashes, nil
}

// generation identifies the results of a run. A rerun producing identical outputs keeps its generation.
// Writers of mutated nodes get a generation unique to the build, so the rest of their chain reruns.
func (j *taskJob) generation(signature string, stamps, outputs map[string]string) string {
	h := j.state.s.hasher
	if j.rewrites {
		return h.Combine(j.state.buildID, j.task.Key())
	}
	parts := []string{signature}
	for _, k := range slices.Sorted(maps.Keys(stamps)) {
		parts = append(parts, k, stamps[k])
	}
	for _, k := range slices.Sorted(maps.Keys(outputs)) {
		parts = append(parts, k, outputs[k])
	}
	return h.Combine(parts...)
}
