package domain_test

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

func TestNode_Identity(t *testing.T) {
	assert.Equal(t, domain.PathNode("/tmp/a/../b.txt"), domain.PathNode("/tmp/b.txt"))
	assert.Equal(t, domain.VirtualNode("INITIAL"), domain.VirtualNode("<INITIAL>"))
	assert.NotEqual(t, domain.PathNode("/tmp/x"), domain.DirectoryTreeNode("/tmp/x"))
	assert.True(t, domain.Node{}.IsZero())
	assert.Empty(t, domain.Node{}.Name())
}

func TestNode_ParseRoundTrip(t *testing.T) {
	for _, n := range []domain.Node{
		domain.PathNode("/tmp/a.c"),
		domain.VirtualNode("target-App-entry"),
		domain.DirectoryTreeNode("/tmp/gen"),
	} {
		assert.Equal(t, n, domain.ParseNode(n.String()), n.String())
	}
	assert.Equal(t, "dir:/tmp/gen", domain.DirectoryTreeNode("/tmp/gen/").String())
}

func TestCompareNodes(t *testing.T) {
	assert.Negative(t, domain.CompareNodes(domain.PathNode("/b"), domain.VirtualNode("a")))
	assert.Negative(t, domain.CompareNodes(domain.PathNode("/a"), domain.PathNode("/b")))
	assert.Zero(t, domain.CompareNodes(domain.PathNode("/a"), domain.PathNode("/a")))
}

func TestTask_GateKind(t *testing.T) {
	tests := []struct {
		rule []string
		want domain.GateKind
	}{
		{[]string{"Gate", "target-App-1234-entry"}, domain.GateBegin},
		{[]string{"Gate", "target-App-1234-begin-compiling"}, domain.GateBegin},
		{[]string{"Gate", "target-App-1234-end"}, domain.GateEnd},
		{[]string{"Gate", "target-App-1234-linker-inputs-ready"}, domain.GateEnd},
		{[]string{"Gate", "workspace-fence"}, domain.GateNone},
		{[]string{"CompileC", "a.o"}, domain.GateNone},
	}
	for _, tt := range tests {
		task := &domain.Task{RuleInfo: tt.rule}
		assert.Equal(t, tt.want, task.GateKind(), task.Key())
	}
}

func TestConfiguredTarget_DynamicVariant(t *testing.T) {
	lib := &domain.Target{Name: "Lib", Kind: domain.ProductKindPackageTarget}
	params := domain.BuildParameters{Configuration: "Debug"}

	static := domain.NewConfiguredTarget(lib, params)
	dynamic := domain.NewConfiguredTarget(lib, params.WithOverride(domain.BuildDynamicallySetting, "YES"))

	assert.Equal(t, "Lib", static.Name())
	assert.Equal(t, "Lib-dynamic", dynamic.Name())
	assert.Equal(t, domain.ProductKindPackageTarget, static.Kind())
	assert.Equal(t, domain.ProductKindDynamicLibrary, dynamic.Kind())
	assert.NotEqual(t, static.ID(), dynamic.ID())
	assert.Len(t, dynamic.ShortID(), 12)
	assert.Empty(t, params.Overrides, "WithOverride must not modify the receiver")
}

func TestWorkspace_Lookup(t *testing.T) {
	fwk := &domain.Target{Name: "Fwk", Kind: domain.ProductKindFramework}
	lib := &domain.Target{Name: "Core", Kind: domain.ProductKindStaticLibrary, Settings: map[string]string{"PRODUCT_NAME": "core"}}

	ws, err := domain.NewWorkspace("/ws", []*domain.Target{fwk, lib})
	require.NoError(t, err)

	got, ok := ws.TargetByProduct("Fwk.framework")
	require.True(t, ok)
	assert.Same(t, fwk, got)

	got, ok = ws.TargetByProduct("libcore.a")
	require.True(t, ok)
	assert.Same(t, lib, got)

	_, err = domain.NewWorkspace("/ws", []*domain.Target{fwk, fwk})
	require.ErrorIs(t, err, domain.ErrDuplicateTargetName)
}

func TestWrap_KeepsSentinel(t *testing.T) {
	err := zerr.With(domain.Wrap(domain.ErrConfigReadFailed, fs.ErrNotExist), "path", "/ws/bake.yaml")
	require.ErrorIs(t, err, domain.ErrConfigReadFailed)
	require.ErrorIs(t, err, fs.ErrNotExist)
	assert.Equal(t, "failed to read config file: file does not exist", err.Error())

	err = zerr.With(zerr.Wrap(domain.ErrInvalidProductKind, ""), "kind", "gadget")
	require.ErrorIs(t, err, domain.ErrInvalidProductKind)
	assert.Equal(t, domain.ErrInvalidProductKind.Error(), err.Error())

	assert.NoError(t, domain.Wrap(domain.ErrConfigReadFailed, nil))
}
