package domain

import (
	"context"
	"io"
	"slices"
	"strings"
)

// GateRule is the rule info type tag of gate tasks.
const GateRule = "Gate"

// Action is in-process executable behavior attached to a task.
type Action interface {
	// Kind names the action for manifests.
	Kind() string
	// Params returns the serializable parameters of the action.
	Params() map[string]string
	// Signature is the content fingerprint of the action payload.
	Signature() string
	// Run performs the action, writing any log text to out.
	Run(ctx context.Context, out io.Writer) error
}

// TaskType is the per-type capability set of tasks sharing a rule info tag.
type TaskType interface {
	// Name is the rule info tag the type serves.
	Name() string
	// SignatureContribution returns extra content mixed into the signature of t.
	SignatureContribution(t *Task) string
	// ParseOutput runs after a successful exit and may fail the task.
	ParseOutput(t *Task, output []byte) error
	// UnsafeToInterrupt reports whether tasks of this type must never receive an interrupt.
	UnsafeToInterrupt() bool
	// Describe renders t as one line of prose, or false when the task has no standalone rendering.
	Describe(t *Task) (string, bool)
}

// Task is a scheduled unit of work. Tasks are immutable once the build description is finalized.
type Task struct {
	RuleInfo         []string
	CommandLine      []string
	Environment      map[string]string
	WorkingDirectory string
	Inputs           []Node
	Outputs          []Node
	// MustPrecede lists tasks that may not start before this one completes. No data flows along these edges.
	MustPrecede      []*Task
	Action           Action
	AdditionalOutput []string
	// ForTarget is nil for workspace-global tasks.
	ForTarget           *ConfiguredTarget
	PreparesForIndexing bool
	Type                TaskType
	// TargetDependencies is set on target entry gates so that cycles through them can be explained.
	TargetDependencies []ResolvedDependency
}

// Key returns the rule identity of the task.
func (t *Task) Key() string {
	return strings.Join(t.RuleInfo, " ")
}

// RuleType returns the first rule info element.
func (t *Task) RuleType() string {
	if len(t.RuleInfo) == 0 {
		return ""
	}
	return t.RuleInfo[0]
}

// IsGate reports whether the task is a zero-work synchronization task.
func (t *Task) IsGate() bool {
	return t.RuleType() == GateRule
}

// IsUnsafeToInterrupt reports whether the task's type forbids interrupt signals.
func (t *Task) IsUnsafeToInterrupt() bool {
	return t.Type != nil && t.Type.UnsafeToInterrupt()
}

// HasVirtualOutput reports whether any output is a virtual node.
func (t *Task) HasVirtualOutput() bool {
	return slices.ContainsFunc(t.Outputs, Node.IsVirtual)
}

// ReadsNode reports whether n is one of the task's inputs.
func (t *Task) ReadsNode(n Node) bool {
	return slices.Contains(t.Inputs, n)
}

// TargetName returns the name of the owning target, or "".
func (t *Task) TargetName() string {
	if t.ForTarget == nil {
		return ""
	}
	return t.ForTarget.Name()
}

func (t *Task) String() string {
	return t.Key()
}

// GateKind distinguishes the two boundaries of a target's work.
type GateKind uint8

const (
	GateNone GateKind = iota
	GateBegin
	GateEnd
)

// GateKind classifies a gate by its name suffix.
func (t *Task) GateKind() GateKind {
	if !t.IsGate() || len(t.RuleInfo) < 2 || !strings.HasPrefix(t.RuleInfo[1], "target-") {
		return GateNone
	}
	name := t.RuleInfo[1]
	switch {
	case strings.HasSuffix(name, "-entry"), strings.HasSuffix(name, "-begin-compiling"), strings.HasSuffix(name, "-begin-linking"):
		return GateBegin
	case strings.HasSuffix(name, "-end"), strings.HasSuffix(name, "-modules-ready"), strings.HasSuffix(name, "-linker-inputs-ready"):
		return GateEnd
	default:
		return GateNone
	}
}
