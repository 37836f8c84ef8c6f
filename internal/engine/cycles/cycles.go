// Package cycles renders dependency cycles of a build description as diagnostics.
package cycles

import (
	"slices"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/tasktype"
	"go.trai.ch/zerr"
)

const (
	markerNewTarget  = "→"
	markerSameTarget = "○"
)

// Diagnostic is the rendered form of one dependency cycle.
type Diagnostic struct {
	// Header names the cycle, e.g. "Cycle in dependencies between targets 'A' and 'C'; ...".
	Header string
	// Path is "Cycle path: A → B → C → A" for cycles spanning targets, empty otherwise.
	Path string
	// UsingManualOrder is set when a target boundary of the cycle is only explained by manual target order.
	UsingManualOrder bool
	// Lines narrate the cycle, each prefixed with a marker.
	Lines []string
	// RawTrace lists every task of the detected path.
	RawTrace string

	preamble string
}

// String renders the complete message.
func (d Diagnostic) String() string {
	var b strings.Builder
	b.WriteString(d.Header)
	b.WriteByte('\n')
	if d.Path != "" {
		b.WriteString(d.Path)
		b.WriteByte('\n')
	}
	b.WriteString("Cycle details:\n")
	b.WriteString(d.preamble)
	b.WriteString(strings.Join(d.Lines, "\n"))
	return b.String()
}

// Error carries a rendered cycle diagnostic. It matches domain.ErrTaskCycle.
type Error struct {
	Diagnostic Diagnostic
}

func (e *Error) Error() string { return e.Diagnostic.String() }

// Unwrap returns domain.ErrTaskCycle.
func (e *Error) Unwrap() error { return domain.ErrTaskCycle }

// NewError wraps d and attaches its target path as metadata when it has one.
func NewError(d Diagnostic) error {
	var err error = &Error{Diagnostic: d}
	if d.Path != "" {
		err = zerr.With(err, "path", strings.TrimPrefix(d.Path, "Cycle path: "))
	}
	return err
}

// Errors renders every cycle of desc as an error. Cycles are walked in declaration order.
func Errors(desc *domain.BuildDescription, req *domain.BuildRequest) []error {
	found := desc.Graph().Cycles()
	if len(found) == 0 {
		return nil
	}
	errs := make([]error, 0, len(found))
	for _, d := range New(desc, req).FormatAll(found) {
		errs = append(errs, NewError(d))
	}
	return errs
}

// Formatter renders cycles of one build description.
type Formatter struct {
	parallelTargets bool
	schemeCommand   string
}

// New creates a Formatter for a description built for req.
func New(desc *domain.BuildDescription, req *domain.BuildRequest) *Formatter {
	return &Formatter{parallelTargets: desc.TargetsBuildInParallel, schemeCommand: req.SchemeCommand}
}

// Format renders one cycle. Tasks leading up to the repeating part are dropped.
func (f *Formatter) Format(c domain.Cycle) Diagnostic {
	d := Diagnostic{RawTrace: RawTrace(c)}

	tasks := f.fromManualBoundary(insideCycle(c))
	if len(tasks) == 0 {
		d.Header = "Cycle in dependencies detected, but the beginning and end of the cycle could not be matched."
		return d
	}

	involved := involvedTargets(tasks)
	if len(involved) <= 1 {
		name := "a single target"
		if len(involved) == 1 {
			name = involved[0]
		}
		d.Header = "Cycle inside " + name + "; building could produce unreliable results." + likelyCause(tasks)
		d.Lines = prefixLines([][]string{f.singleTargetLines(tasks)})
		return d
	}

	d.Header = "Cycle in dependencies between targets '" + involved[0] + "' and '" + involved[len(involved)-2] +
		"'; building could produce unreliable results."
	d.Path = "Cycle path: " + strings.Join(involved, " → ")

	groups, manual := f.multiTargetLines(tasks)
	d.UsingManualOrder = manual
	if manual {
		d.preamble = "Target build order preserved because "
		if f.schemeCommand != "" {
			d.preamble += "“Build Order” is set to “Manual Order” in the scheme settings\n\n"
		} else {
			d.preamble += "“Parallelize build for command-line builds” in the project settings is off\n\n"
		}
	}
	d.Lines = prefixLines(groups)
	return d
}

// FormatAll renders every cycle in order.
func (f *Formatter) FormatAll(cs []domain.Cycle) []Diagnostic {
	out := make([]Diagnostic, len(cs))
	for i, c := range cs {
		out[i] = f.Format(c)
	}
	return out
}

// insideCycle drops everything before the first occurrence of the repeated task.
func insideCycle(c domain.Cycle) []*domain.Task {
	if len(c) == 0 {
		return nil
	}
	first := slices.Index(c, c[len(c)-1])
	return c[first:]
}

// fromManualBoundary rotates a closed cycle so that it starts at the first target boundary
// only explained by manual target order. Work of the target ordered first then shares the
// boundary's line group.
func (f *Formatter) fromManualBoundary(tasks []*domain.Task) []*domain.Task {
	if f.parallelTargets || len(tasks) < 3 {
		return tasks
	}
	ring := tasks[:len(tasks)-1]
	for i, t := range ring {
		next := ring[(i+1)%len(ring)]
		if !t.IsGate() || !next.IsGate() || t.ForTarget == nil || next.ForTarget == nil || t.ForTarget == next.ForTarget {
			continue
		}
		if _, found := onlyDependencyOn(t.TargetDependencies, next.ForTarget); found {
			continue
		}
		if i == 0 {
			return tasks
		}
		rotated := make([]*domain.Task, 0, len(tasks))
		rotated = append(rotated, ring[i:]...)
		rotated = append(rotated, ring[:i]...)
		return append(rotated, ring[i])
	}
	return tasks
}

// involvedTargets lists the targets along the cycle without consecutive repeats,
// closing the list with its first element.
func involvedTargets(tasks []*domain.Task) []string {
	var names []string
	last := ""
	for _, t := range tasks {
		name := t.TargetName()
		if name == "" {
			continue
		}
		if name != last {
			names = append(names, name)
		}
		last = name
	}
	if len(names) > 0 && names[0] != names[len(names)-1] {
		names = append(names, names[0])
	}
	return names
}

func prefixLines(groups [][]string) []string {
	var out []string
	for _, group := range groups {
		for i, line := range group {
			marker := markerSameTarget
			if i == 0 {
				marker = markerNewTarget
			}
			out = append(out, marker+" "+line)
		}
	}
	return out
}

// payload is one line of a multi-target narration: either a task to render or a prepared message.
type payload struct {
	target  *domain.ConfiguredTarget
	task    *domain.Task
	message string
}

func (p payload) text() (string, bool) {
	if p.task == nil {
		return p.message, true
	}
	return tasktype.Describe(p.task)
}

// multiTargetLines reports only what happens at target boundaries. Between two gates the
// boundary is a target dependency; anywhere else it is a task of one target consuming
// the work of another.
func (f *Formatter) multiTargetLines(tasks []*domain.Task) ([][]string, bool) {
	var (
		manual   bool
		prev     *domain.ConfiguredTarget
		prevDeps []domain.ResolvedDependency
		saved    []*domain.Task
		payloads []payload
	)

	for _, task := range tasks {
		if ct := task.ForTarget; ct != nil {
			if ct != prev {
				if len(saved) > 0 && prev != nil {
					if task.IsGate() && saved[0].IsGate() {
						dep, found := onlyDependencyOn(prevDeps, ct)
						if !found && !f.parallelTargets {
							manual = true
						}
						payloads = append(payloads, payload{target: ct, message: f.edgeMessage(prev, ct, dep, found)})
					} else {
						for i, s := range saved {
							p := payload{task: s}
							if i == 0 {
								p.target = prev
							}
							payloads = append(payloads, p)
						}
						payloads = append(payloads, payload{target: ct, task: task})
					}
				}
				prev = ct
				prevDeps = nil
			}
			saved = []*domain.Task{task}
		} else {
			saved = append(saved, task)
		}

		if len(task.TargetDependencies) > 0 {
			prevDeps = task.TargetDependencies
		}
	}

	var (
		groups    [][]string
		current   []string
		curTarget *domain.ConfiguredTarget
	)
	for _, p := range payloads {
		line, ok := p.text()
		if !ok {
			continue
		}
		if p.target == nil || p.target == curTarget {
			current = append(current, line)
			continue
		}
		if len(current) > 0 {
			groups = append(groups, current)
			current = nil
		}
		curTarget = p.target
		current = append(current, line)
	}
	groups = append(groups, current)

	return groups, manual
}

func (f *Formatter) edgeMessage(from, to *domain.ConfiguredTarget, dep domain.ResolvedDependency, found bool) string {
	fromName, toName := from.Name(), to.Name()
	if !found {
		if !f.parallelTargets {
			msg := "Target '" + fromName + "' is ordered after Target '" + toName + "' in a “Target Dependencies” build phase"
			if f.schemeCommand != "" {
				msg += " or in the scheme"
			}
			return msg
		}
		return "Target '" + fromName + "' depends on Target '" + toName + "', but the reason for the dependency could not be determined"
	}

	r := dep.Reason
	switch r.Kind {
	case domain.ReasonExplicit:
		return "Target '" + fromName + "' has an explicit dependency on Target '" + toName + "'"
	case domain.ReasonImplicitBuildPhaseLinkage:
		return "Target '" + fromName + "' has an implicit dependency on Target '" + toName + "' because '" + fromName +
			"' references the file '" + r.Filename + "' in the build phase '" + r.BuildPhase + "'"
	case domain.ReasonImplicitBuildSettingLinkage:
		return "Target '" + fromName + "' has an implicit dependency on Target '" + toName + "' because '" + fromName +
			"' defines the option '" + r.OptionsString() + "' in the build setting '" + r.Setting + "'"
	case domain.ReasonTransitive:
		return "Target '" + fromName + "' has a dependency on Target '" + toName + "' via its transitive dependency through '" +
			r.Intermediate + "'"
	default:
		return "Target '" + fromName + "' depends on Target '" + toName + "', but the reason for the dependency could not be determined"
	}
}

// onlyDependencyOn returns the dependency on target if there is exactly one.
func onlyDependencyOn(deps []domain.ResolvedDependency, target *domain.ConfiguredTarget) (domain.ResolvedDependency, bool) {
	var match domain.ResolvedDependency
	n := 0
	for _, d := range deps {
		if d.Target == target {
			match = d
			n++
		}
	}
	return match, n == 1
}

// singleTargetLines narrates every task of a cycle that stays inside one target.
func (f *Formatter) singleTargetLines(tasks []*domain.Task) []string {
	var (
		lines     []string
		beginName string
		beginDeps []domain.ResolvedDependency
	)
	for i := 0; i < len(tasks); i++ {
		task := tasks[i]
		if i+2 < len(tasks) && tasks[i+1].GateKind() == domain.GateBegin && tasks[i+2].GateKind() == domain.GateEnd &&
			task.GateKind() == domain.GateNone && task.ForTarget != nil {
			lines = append(lines, "Target '"+task.TargetName()+"'")
			continue
		}
		switch task.GateKind() {
		case domain.GateBegin:
			beginName = task.TargetName()
			beginDeps = task.TargetDependencies
		case domain.GateEnd:
			if beginName == "" {
				continue
			}
			dep, found := onlyDependencyOn(beginDeps, task.ForTarget)
			lines = append(lines, "Target '"+beginName+"' has dependency on Target '"+task.TargetName()+"'"+
				f.edgeSuffix(beginName, dep, found))
		default:
			if line, ok := tasktype.Describe(task); ok {
				lines = append(lines, line)
			}
		}
	}
	return lines
}

func (f *Formatter) edgeSuffix(from string, dep domain.ResolvedDependency, found bool) string {
	if !found {
		if !f.parallelTargets {
			suffix := " due to target order in a “Target Dependencies” build phase"
			if f.schemeCommand != "" {
				suffix += " or the scheme"
			}
			return suffix
		}
		return ""
	}
	r := dep.Reason
	switch r.Kind {
	case domain.ReasonExplicit:
		return " via the “Target Dependencies” build phase"
	case domain.ReasonImplicitBuildPhaseLinkage:
		return " because the scheme has implicit dependencies enabled and the Target '" + from +
			"' references the file '" + r.Filename + "' in the build phase '" + r.BuildPhase + "'"
	case domain.ReasonImplicitBuildSettingLinkage:
		return " because the scheme has implicit dependencies enabled and the Target '" + from +
			"' defines the options '" + r.OptionsString() + "' in the build setting '" + r.Setting + "'"
	case domain.ReasonTransitive:
		return " via its transitive dependency through '" + r.Intermediate + "'"
	default:
		return ""
	}
}

// likelyCause recognizes a few well-known cycle shapes and suggests a fix.
func likelyCause(tasks []*domain.Task) string {
	for i := 0; i+1 < len(tasks); i++ {
		cur, next := tasks[i], tasks[i+1]
		switch {
		case cur.RuleType() == "ValidateEmbeddedBinary" && strings.HasSuffix(lastArg(cur), ".appex") &&
			next.RuleType() == "ProcessInfoPlistFile":
			return " This can usually be resolved by moving the app extension embedding build phase to the end of the list."
		case strings.HasPrefix(cur.RuleType(), "Compile") &&
			(next.RuleType() == tasktype.CpHeader || next.RuleType() == tasktype.CpResource) &&
			strings.HasSuffix(lastArg(next), ".modulemap"):
			return " This usually means the target's module map is copied after compiling its sources."
		}
	}
	if last := tasks[len(tasks)-1]; last.RuleType() == tasktype.PhaseScriptExecution && len(last.RuleInfo) > 1 {
		return " This usually can be resolved by moving the shell script phase '" + last.RuleInfo[1] +
			"' so that it runs before the build phase that depends on its outputs."
	}
	return ""
}

func lastArg(t *domain.Task) string {
	if len(t.RuleInfo) < 2 {
		return ""
	}
	return t.RuleInfo[len(t.RuleInfo)-1]
}

// RawTrace lists every task of the detected path, marking where the cycle starts.
func RawTrace(c domain.Cycle) string {
	if len(c) == 0 {
		return ""
	}
	start := slices.Index(c, c[len(c)-1])
	entries := make([]string, 0, len(c)+1)
	for i, t := range c {
		if i == start && i < len(c)-1 {
			entries = append(entries, "CYCLE POINT")
		}
		entries = append(entries, "command: "+t.Key())
	}
	return "Raw dependency cycle trace:\n\n" + strings.Join(entries, " ->\n\n")
}
