// Package tasktype holds the descriptors that give every rule type its signature contribution,
// output parsing, interruption safety and one-line rendering.
package tasktype

import (
	"strings"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
)

// Rule type tags produced by the planner.
const (
	CreateBuildDirectory = "CreateBuildDirectory"
	CpHeader             = "CpHeader"
	CpResource           = "CpResource"
	Copy                 = "Copy"
	CompileC             = "CompileC"
	CompileSwiftSources  = "CompileSwiftSources"
	DataModelCompile     = "DataModelCompile"
	Preprocess           = "Preprocess"
	ProcessPCH           = "ProcessPCH"
	ProcessSDKImports    = "ProcessSDKImports"
	Ld                   = "Ld"
	Libtool              = "Libtool"
	MkDir                = "MkDir"
	SymLink              = "SymLink"
	GenerateDSYMFile     = "GenerateDSYMFile"
	WriteAuxiliaryFile   = "WriteAuxiliaryFile"
	PhaseScriptExecution = "PhaseScriptExecution"
	Touch                = "Touch"
)

// Descriptor is a domain.TaskType assembled from optional hooks.
type Descriptor struct {
	name      string
	describe  func(t *domain.Task) (string, bool)
	parse     func(t *domain.Task, output []byte) error
	signature func(t *domain.Task) string
	unsafe    bool
}

var _ domain.TaskType = (*Descriptor)(nil)

// Option configures a Descriptor.
type Option func(*Descriptor)

// WithDescribe sets the rendering hook.
func WithDescribe(fn func(t *domain.Task) (string, bool)) Option {
	return func(d *Descriptor) { d.describe = fn }
}

// WithOutputParser sets the hook run after a successful exit.
func WithOutputParser(fn func(t *domain.Task, output []byte) error) Option {
	return func(d *Descriptor) { d.parse = fn }
}

// WithSignature sets the signature contribution hook.
func WithSignature(fn func(t *domain.Task) string) Option {
	return func(d *Descriptor) { d.signature = fn }
}

// UnsafeToInterrupt marks the type as never receiving an interrupt.
func UnsafeToInterrupt() Option {
	return func(d *Descriptor) { d.unsafe = true }
}

// New creates a descriptor for the rule type tag name.
func New(name string, opts ...Option) *Descriptor {
	d := &Descriptor{name: name}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Name returns the rule type tag.
func (d *Descriptor) Name() string { return d.name }

// SignatureContribution returns extra content mixed into the task signature.
func (d *Descriptor) SignatureContribution(t *domain.Task) string {
	if d.signature == nil {
		return ""
	}
	return d.signature(t)
}

// ParseOutput inspects the output of a successful run.
func (d *Descriptor) ParseOutput(t *domain.Task, output []byte) error {
	if d.parse == nil {
		return nil
	}
	return d.parse(t, output)
}

// UnsafeToInterrupt reports whether tasks of the type must run to completion.
func (d *Descriptor) UnsafeToInterrupt() bool { return d.unsafe }

// Describe renders t as one line.
func (d *Descriptor) Describe(t *domain.Task) (string, bool) {
	if d.describe == nil {
		return describeGeneric(t)
	}
	return d.describe(t)
}

// Registry maps rule type tags to descriptors.
type Registry struct {
	mu    sync.RWMutex
	types map[string]domain.TaskType
}

// NewRegistry returns a registry holding the built-in types.
func NewRegistry() *Registry {
	r := &Registry{types: make(map[string]domain.TaskType)}
	for _, d := range builtins() {
		r.Register(d)
	}
	return r
}

// Register adds or replaces a type.
func (r *Registry) Register(t domain.TaskType) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[t.Name()] = t
}

// Lookup returns the type for a rule type tag. Unknown tags get a generic descriptor.
func (r *Registry) Lookup(tag string) domain.TaskType {
	r.mu.RLock()
	t, ok := r.types[tag]
	r.mu.RUnlock()
	if ok {
		return t
	}
	return New(tag)
}

// Assign sets the Type of every task that has none.
func (r *Registry) Assign(tasks []*domain.Task) {
	for _, t := range tasks {
		if t.Type == nil {
			t.Type = r.Lookup(t.RuleType())
		}
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry of built-in types.
func Default() *Registry {
	return defaultRegistry
}

// Describe renders a task through its type, falling back to the default registry.
func Describe(t *domain.Task) (string, bool) {
	typ := t.Type
	if typ == nil {
		typ = defaultRegistry.Lookup(t.RuleType())
	}
	return typ.Describe(t)
}

func ruleArg(t *domain.Task, i int) string {
	if i < len(t.RuleInfo) {
		return t.RuleInfo[i]
	}
	return ""
}

func describeGeneric(t *domain.Task) (string, bool) {
	key := strings.Join(t.RuleInfo, " ")
	if name := t.TargetName(); name != "" {
		return "Target '" + name + "': " + key, true
	}
	return "Command: " + key, true
}

// withTarget prefixes a phrase with the owning target, e.g. "Target 'A' has copy command ...".
func withTarget(t *domain.Task, phrase string) (string, bool) {
	if name := t.TargetName(); name != "" {
		return "Target '" + name + "' has " + phrase, true
	}
	return "Command has " + phrase, true
}
