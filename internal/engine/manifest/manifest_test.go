package manifest_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/actions"
	"go.trai.ch/bake/internal/engine/cycles"
	"go.trai.ch/bake/internal/engine/manifest"
	"go.trai.ch/bake/internal/engine/planner"
	"go.trai.ch/bake/internal/engine/resolver"
)

func planned(t *testing.T) *domain.BuildDescription {
	t.Helper()
	ws, err := domain.NewWorkspace("/ws", []*domain.Target{
		{
			Name: "App", Dir: "/ws", Kind: domain.ProductKindTool,
			Phases: []domain.BuildPhase{
				{Kind: domain.PhaseSources, Files: []string{"main.c"}},
				{Kind: domain.PhaseLink, Files: []string{"libCore.a"}},
			},
		},
		{
			Name: "Core", Dir: "/ws/core", Kind: domain.ProductKindStaticLibrary,
			Settings: map[string]string{"OTHER_CFLAGS": "-O2 -g"},
			Phases: []domain.BuildPhase{
				{Kind: domain.PhaseHeaders, Files: []string{"core.h"}},
				{Kind: domain.PhaseSources, Files: []string{"core.c"}},
				{Kind: domain.PhaseScript, Name: "Version", Script: "echo 1 > v.txt", Outputs: []string{"v.txt"}},
			},
		},
	})
	require.NoError(t, err)

	req := &domain.BuildRequest{
		Targets:                 []domain.BuildTarget{{Name: "App"}},
		Parameters:              domain.BuildParameters{Configuration: "Debug"},
		UseImplicitDependencies: true,
		UseParallelTargets:      true,
	}
	p := planner.New(resolver.New(resolver.Options{}), planner.Options{CaptureDir: "/capture"})
	desc, err := p.Plan(context.Background(), ws, req)
	require.NoError(t, err)
	return desc
}

func TestMarshal_Deterministic(t *testing.T) {
	first, err := manifest.Marshal(planned(t))
	require.NoError(t, err)
	second, err := manifest.Marshal(planned(t))
	require.NoError(t, err)

	assert.Equal(t, string(first), string(second))
	assert.True(t, strings.HasPrefix(string(first), "version: \"1\"\n"))
}

func TestDecode_RoundTrip(t *testing.T) {
	desc := planned(t)
	data, err := manifest.Marshal(desc)
	require.NoError(t, err)

	decoded, err := manifest.Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)

	again, err := manifest.Marshal(decoded)
	require.NoError(t, err)
	assert.Equal(t, string(data), string(again))

	require.Len(t, decoded.Tasks, len(desc.Tasks))
	require.Len(t, decoded.Targets, 2)
	app := decoded.Targets[1]
	assert.Equal(t, "App", app.Name())
	require.Len(t, app.Dependencies, 1)
	assert.Same(t, decoded.Targets[0], app.Dependencies[0].Target)
	assert.True(t, app.Dependencies[0].Links)
	assert.Equal(t, domain.ReasonImplicitBuildPhaseLinkage, app.Dependencies[0].Reason.Kind)

	for i, task := range decoded.Tasks {
		assert.Equal(t, desc.Tasks[i].Key(), task.Key())
		assert.NotNil(t, task.Type, task.Key())
		if desc.Tasks[i].Action != nil {
			require.NotNil(t, task.Action, task.Key())
			assert.Equal(t, desc.Tasks[i].Action.Signature(), task.Action.Signature())
		}
		if task.GateKind() == domain.GateBegin {
			assert.Equal(t, len(desc.Tasks[i].TargetDependencies), len(task.TargetDependencies))
		}
	}
	require.NotNil(t, decoded.CapturedBuildInfo)
	assert.Equal(t, desc.CapturedBuildInfo.Targets, decoded.CapturedBuildInfo.Targets)
}

func TestDecode_MutationChain(t *testing.T) {
	file := domain.PathNode("/tmp/test.txt")
	initial := &domain.Task{
		RuleInfo: []string{"INITIAL"},
		Outputs:  []domain.Node{file, domain.VirtualNode("INITIAL")},
		Action:   actions.WriteFile(file.Name(), "Hello"),
	}
	appendTask := &domain.Task{
		RuleInfo: []string{"APPEND"},
		Inputs:   []domain.Node{file, domain.VirtualNode("INITIAL")},
		Outputs:  []domain.Node{file, domain.VirtualNode("APPEND")},
		Action:   actions.Append(file.Name(), ", world!"),
	}
	fence := &domain.Task{RuleInfo: []string{domain.GateRule, "fence"}}
	initial.MustPrecede = []*domain.Task{fence}

	desc, err := domain.NewBuildDescription([]*domain.Task{initial, appendTask, fence})
	require.NoError(t, err)

	data, err := manifest.Marshal(desc)
	require.NoError(t, err)
	decoded, err := manifest.Decode(bytes.NewReader(data), nil)
	require.NoError(t, err)

	g := decoded.Graph()
	assert.True(t, g.IsMutated(file))
	assert.Equal(t, []string{"INITIAL", "APPEND"}, []string{g.MutationChain(file)[0].Key(), g.MutationChain(file)[1].Key()})
	require.Len(t, decoded.Tasks[0].MustPrecede, 1)
	assert.Same(t, decoded.Tasks[2], decoded.Tasks[0].MustPrecede[0])
}

func TestDecode_RejectsCycles(t *testing.T) {
	a := &domain.Task{
		RuleInfo: []string{"A"},
		Inputs:   []domain.Node{domain.PathNode("/out/b")},
		Outputs:  []domain.Node{domain.PathNode("/out/a")},
	}
	b := &domain.Task{
		RuleInfo: []string{"B"},
		Inputs:   []domain.Node{domain.PathNode("/out/a")},
		Outputs:  []domain.Node{domain.PathNode("/out/b")},
	}
	desc, err := domain.NewBuildDescription([]*domain.Task{a, b})
	require.NoError(t, err)

	data, err := manifest.Marshal(desc)
	require.NoError(t, err)
	_, err = manifest.Decode(bytes.NewReader(data), nil)
	require.ErrorIs(t, err, domain.ErrManifestDecodeFailed)
	require.ErrorIs(t, err, domain.ErrTaskCycle)

	var cycleErr *cycles.Error
	require.ErrorAs(t, err, &cycleErr)
	assert.Contains(t, cycleErr.Diagnostic.Header, "Cycle inside a single target")
	assert.Contains(t, cycleErr.Diagnostic.RawTrace, "CYCLE POINT")
}

func TestDecode_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  error
	}{
		{"wrong version", "version: \"0\"\n", domain.ErrManifestDecodeFailed},
		{"unknown action", "version: \"1\"\ntasks:\n  - rule: [X]\n    action: {kind: teleport}\n", domain.ErrUnknownAction},
		{"unknown must precede", "version: \"1\"\ntasks:\n  - rule: [X]\n    mustPrecede: [Y]\n", domain.ErrUnknownMustPrecede},
		{"unknown target", "version: \"1\"\ntasks:\n  - rule: [X]\n    target: nope\n", domain.ErrManifestDecodeFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Decode(strings.NewReader(tt.input), nil)
			require.ErrorIs(t, err, tt.want)
		})
	}

	t.Run("not yaml", func(t *testing.T) {
		_, err := manifest.Decode(strings.NewReader("version: ["), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), domain.ErrManifestDecodeFailed.Error())
	})
}
