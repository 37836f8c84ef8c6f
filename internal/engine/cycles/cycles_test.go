package cycles_test

import (
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/cycles"
)

// fixture assembles a small gated task graph by hand.
type fixture struct {
	targets map[string]*domain.ConfiguredTarget
	names   []string
	work    map[string][]*domain.Task
	global  []*domain.Task
	// after adds manual-order inputs to an entry gate without recording a dependency.
	after map[string][]string
	gates map[string][2]*domain.Task
}

func newFixture(names ...string) *fixture {
	f := &fixture{
		targets: map[string]*domain.ConfiguredTarget{},
		names:   names,
		work:    map[string][]*domain.Task{},
		after:   map[string][]string{},
		gates:   map[string][2]*domain.Task{},
	}
	for _, name := range names {
		f.targets[name] = domain.NewConfiguredTarget(
			&domain.Target{Name: name, Kind: domain.ProductKindFramework},
			domain.BuildParameters{Configuration: "Debug"},
		)
	}
	return f
}

func entryNode(name string) domain.Node { return domain.VirtualNode("target-" + name + "-entry") }
func endNode(name string) domain.Node   { return domain.VirtualNode("target-" + name + "-end") }

func (f *fixture) depend(from, to string, reason domain.DependencyReason) {
	ct := f.targets[from]
	ct.Dependencies = append(ct.Dependencies, domain.ResolvedDependency{Target: f.targets[to], Reason: reason})
}

func (f *fixture) task(target string, rule []string, inputs []domain.Node, outputs ...domain.Node) *domain.Task {
	t := &domain.Task{RuleInfo: rule, Outputs: outputs}
	if target == "" {
		t.Inputs = inputs
		f.global = append(f.global, t)
		return t
	}
	t.ForTarget = f.targets[target]
	t.Inputs = append([]domain.Node{entryNode(target)}, inputs...)
	f.work[target] = append(f.work[target], t)
	return t
}

func (f *fixture) description(t *testing.T, parallel bool) *domain.BuildDescription {
	t.Helper()
	var tasks []*domain.Task
	for _, name := range f.names {
		ct := f.targets[name]
		entry := &domain.Task{
			RuleInfo:           []string{domain.GateRule, "target-" + name + "-entry"},
			Outputs:            []domain.Node{entryNode(name)},
			ForTarget:          ct,
			TargetDependencies: ct.Dependencies,
		}
		for _, dep := range ct.Dependencies {
			entry.Inputs = append(entry.Inputs, endNode(dep.Target.Name()))
		}
		for _, prev := range f.after[name] {
			entry.Inputs = append(entry.Inputs, endNode(prev))
		}
		end := &domain.Task{
			RuleInfo:  []string{domain.GateRule, "target-" + name + "-end"},
			Inputs:    []domain.Node{entryNode(name)},
			Outputs:   []domain.Node{endNode(name)},
			ForTarget: ct,
		}
		for _, w := range f.work[name] {
			end.Inputs = append(end.Inputs, w.Outputs...)
		}
		f.gates[name] = [2]*domain.Task{entry, end}
		tasks = append(tasks, entry, end)
		tasks = append(tasks, f.work[name]...)
	}
	tasks = append(tasks, f.global...)

	desc, err := domain.NewBuildDescription(tasks)
	require.NoError(t, err)
	desc.TargetsBuildInParallel = parallel
	return desc
}

func (f *fixture) cyclesFrom(desc *domain.BuildDescription, requested ...string) []domain.Cycle {
	roots := make([]*domain.Task, len(requested))
	for i, name := range requested {
		roots[i] = f.gates[name][1]
	}
	return desc.Graph().CyclesFrom(roots)
}

func request(scheme string, names ...string) *domain.BuildRequest {
	req := &domain.BuildRequest{SchemeCommand: scheme}
	for _, n := range names {
		req.Targets = append(req.Targets, domain.BuildTarget{Name: n})
	}
	return req
}

var explicit = domain.DependencyReason{Kind: domain.ReasonExplicit}

func TestFormat(t *testing.T) {
	tests := []struct {
		name       string
		goldenName string
		build      func() (*fixture, []string)
		parallel   bool
		scheme     string
		manual     bool
	}{
		{
			name:       "explicit dependencies",
			goldenName: "explicit_cycle",
			parallel:   true,
			build: func() (*fixture, []string) {
				f := newFixture("A", "B", "C")
				f.depend("A", "B", explicit)
				f.depend("B", "C", explicit)
				f.depend("C", "A", explicit)
				return f, []string{"A"}
			},
		},
		{
			name:       "tasks before the cycle are elided",
			goldenName: "elided_prefix",
			parallel:   true,
			build: func() (*fixture, []string) {
				f := newFixture("A", "C", "D")
				f.depend("A", "C", explicit)
				f.depend("C", "D", explicit)
				f.depend("D", "C", explicit)
				return f, []string{"A"}
			},
		},
		{
			name:       "implicit linkage",
			goldenName: "implicit_linkage",
			parallel:   true,
			build: func() (*fixture, []string) {
				f := newFixture("A", "B")
				f.depend("A", "B", domain.DependencyReason{
					Kind: domain.ReasonImplicitBuildPhaseLinkage, Filename: "B.framework", BuildPhase: "Link Binary",
				})
				f.depend("B", "A", domain.DependencyReason{
					Kind: domain.ReasonImplicitBuildSettingLinkage, Setting: "OTHER_LDFLAGS", Options: []string{"-framework", "A"},
				})
				return f, []string{"A"}
			},
		},
		{
			name:       "generated files",
			goldenName: "generated_files",
			parallel:   true,
			build: func() (*fixture, []string) {
				f := newFixture("A", "B")
				f.depend("A", "B", explicit)
				f.task("B", []string{"CompileC", "/ws/B.o", "/ws/B.m"},
					[]domain.Node{domain.PathNode("/ws/B.m")}, domain.PathNode("/ws/B.o"))
				f.task("A", []string{"PhaseScriptExecution", "Generate B.m", "/ws/A.build/Script-1.sh"},
					nil, domain.PathNode("/ws/B.m"))
				return f, []string{"B", "A"}
			},
		},
		{
			name:       "manual order from a scheme",
			goldenName: "manual_order_scheme",
			scheme:     "App",
			manual:     true,
			build: func() (*fixture, []string) {
				f := newFixture("A", "B")
				f.after["A"] = []string{"B"}
				f.task("B", []string{"CompileC", "/ws/B.o", "/ws/B.m"},
					[]domain.Node{domain.PathNode("/ws/B.m")}, domain.PathNode("/ws/B.o"))
				f.task("", []string{"Copy", "/ws/gen/B.m", "/ws/B.m"},
					[]domain.Node{domain.PathNode("/ws/gen/B.m")}, domain.PathNode("/ws/B.m"))
				f.task("A", []string{"PhaseScriptExecution", "Generate B.m", "/ws/A.build/Script-1.sh"},
					nil, domain.PathNode("/ws/gen/B.m"))
				return f, []string{"B"}
			},
		},
		{
			name:       "script phase inside one target",
			goldenName: "single_target_script",
			parallel:   true,
			build:      singleTargetScript,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, requested := tt.build()
			desc := f.description(t, tt.parallel)
			found := f.cyclesFrom(desc, requested...)
			require.Len(t, found, 1)

			d := cycles.New(desc, request(tt.scheme, requested...)).Format(found[0])
			assert.Equal(t, tt.manual, d.UsingManualOrder)

			g := goldie.New(t)
			g.Assert(t, tt.goldenName, []byte(d.String()+"\n"))
		})
	}
}

func singleTargetScript() (*fixture, []string) {
	f := newFixture("T")
	f.task("T", []string{"PhaseScriptExecution", "Generate", "/ws/T.build/Script-Generate.sh"},
		[]domain.Node{domain.PathNode("/ws/T.o")}, domain.PathNode("/ws/gen.h"))
	f.task("T", []string{"CompileC", "/ws/T.o", "/ws/T.c"},
		[]domain.Node{domain.PathNode("/ws/T.c"), domain.PathNode("/ws/gen.h")}, domain.PathNode("/ws/T.o"))
	return f, []string{"T"}
}

func TestRawTrace(t *testing.T) {
	f, requested := singleTargetScript()
	desc := f.description(t, true)
	found := f.cyclesFrom(desc, requested...)
	require.Len(t, found, 1)

	d := cycles.New(desc, request("", requested...)).Format(found[0])
	assert.Equal(t, cycles.RawTrace(found[0]), d.RawTrace)

	g := goldie.New(t)
	g.Assert(t, "raw_trace", []byte(d.RawTrace+"\n"))
}

func TestFormat_ModuleMapCopiedAfterCompile(t *testing.T) {
	f := newFixture("M")
	f.task("M", []string{"CompileC", "/ws/M.o", "/ws/M.c"},
		[]domain.Node{domain.PathNode("/ws/M.c"), domain.PathNode("/ws/include/module.modulemap")}, domain.PathNode("/ws/M.o"))
	f.task("M", []string{"CpHeader", "/ws/module.modulemap", "/ws/include/module.modulemap"},
		[]domain.Node{domain.PathNode("/ws/M.o")}, domain.PathNode("/ws/include/module.modulemap"))
	desc := f.description(t, true)

	found := f.cyclesFrom(desc, "M")
	require.Len(t, found, 1)

	d := cycles.New(desc, request("", "M")).Format(found[0])
	assert.Equal(t, "Cycle inside M; building could produce unreliable results."+
		" This usually means the target's module map is copied after compiling its sources.", d.Header)
	assert.Empty(t, d.Path)
}

func TestFormat_ManualOrderWithoutScheme(t *testing.T) {
	f := newFixture("A", "B")
	f.after["A"] = []string{"B"}
	f.after["B"] = []string{"A"}
	desc := f.description(t, false)

	found := f.cyclesFrom(desc, "A")
	require.Len(t, found, 1)

	d := cycles.New(desc, request("", "A")).Format(found[0])
	assert.True(t, d.UsingManualOrder)
	assert.Contains(t, d.String(), "“Parallelize build for command-line builds” in the project settings is off\n\n")
	assert.Equal(t, []string{
		"→ Target 'A' is ordered after Target 'B' in a “Target Dependencies” build phase",
		"→ Target 'B' is ordered after Target 'A' in a “Target Dependencies” build phase",
	}, d.Lines)
}

func TestFormatAll_Empty(t *testing.T) {
	f := cycles.New(&domain.BuildDescription{TargetsBuildInParallel: true}, request(""))
	ds := f.FormatAll([]domain.Cycle{{}})
	require.Len(t, ds, 1)
	assert.Contains(t, ds[0].Header, "could not be matched")
	assert.Empty(t, ds[0].Lines)
}
