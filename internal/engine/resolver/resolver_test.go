package resolver_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/resolver"
	"go.trai.ch/zerr"
)

func workspace(t *testing.T, targets ...*domain.Target) *domain.Workspace {
	t.Helper()
	ws, err := domain.NewWorkspace("/ws", targets)
	require.NoError(t, err)
	return ws
}

func request(names ...string) *domain.BuildRequest {
	req := &domain.BuildRequest{
		Parameters:              domain.BuildParameters{Configuration: "Debug"},
		UseImplicitDependencies: true,
		UseParallelTargets:      true,
	}
	for _, n := range names {
		req.Targets = append(req.Targets, domain.BuildTarget{Name: n})
	}
	return req
}

func names(cts []*domain.ConfiguredTarget) []string {
	out := make([]string, len(cts))
	for i, ct := range cts {
		out[i] = ct.Name()
	}
	return out
}

func linkPhase(files ...string) domain.BuildPhase {
	return domain.BuildPhase{Kind: domain.PhaseLink, Files: files}
}

func TestResolve_Order(t *testing.T) {
	ws := workspace(t,
		&domain.Target{Name: "App", Kind: domain.ProductKindApplication, Dependencies: []string{"Fwk", "Util"}},
		&domain.Target{Name: "Fwk", Kind: domain.ProductKindFramework, Dependencies: []string{"Util"}},
		&domain.Target{Name: "Util", Kind: domain.ProductKindStaticLibrary},
		&domain.Target{Name: "Unused", Kind: domain.ProductKindTool},
	)

	res, err := resolver.New(resolver.Options{}).Resolve(ws, request("App"))
	require.NoError(t, err)

	assert.Equal(t, []string{"Util", "Fwk", "App"}, names(res.Targets))
	assert.Equal(t, []string{"App"}, names(res.Requested))

	app := res.Requested[0]
	require.Len(t, app.Dependencies, 2)
	assert.Equal(t, domain.ReasonExplicit, app.Dependencies[0].Reason.Kind)
	assert.Same(t, res.Targets[0], app.Dependencies[1].Target, "configured targets are shared")
}

func TestResolve_Errors(t *testing.T) {
	ws := workspace(t, &domain.Target{Name: "App", Kind: domain.ProductKindApplication, Dependencies: []string{"Missing"}})
	r := resolver.New(resolver.Options{})

	_, err := r.Resolve(ws, request())
	require.ErrorIs(t, err, domain.ErrNoTargetsSpecified)

	_, err = r.Resolve(ws, request("Nope"))
	require.ErrorIs(t, err, domain.ErrTargetNotFound)

	_, err = r.Resolve(ws, request("App"))
	require.ErrorIs(t, err, domain.ErrTargetNotFound)
	var zErr *zerr.Error
	require.ErrorAs(t, err, &zErr)
	assert.Equal(t, "App", zErr.Metadata()["dependent"])
}

func TestResolve_ImplicitDependencies(t *testing.T) {
	ws := workspace(t,
		&domain.Target{Name: "A", Kind: domain.ProductKindFramework, Dependencies: []string{"B"}},
		&domain.Target{
			Name:     "B",
			Kind:     domain.ProductKindFramework,
			Settings: map[string]string{"OTHER_LDFLAGS": "-ObjC -framework C -lz"},
		},
		&domain.Target{
			Name: "C",
			Kind: domain.ProductKindFramework,
			Phases: []domain.BuildPhase{
				linkPhase("A.framework"),
				{Kind: domain.PhaseCopyFiles, Name: "Embed", Files: []string{"Frameworks/D.framework"}},
			},
		},
		&domain.Target{Name: "D", Kind: domain.ProductKindFramework},
	)

	res, err := resolver.New(resolver.Options{}).Resolve(ws, request("A"))
	require.NoError(t, err)

	byName := map[string]*domain.ConfiguredTarget{}
	for _, ct := range res.Targets {
		byName[ct.Name()] = ct
	}

	b := byName["B"]
	require.Len(t, b.Dependencies, 1)
	assert.Equal(t, domain.DependencyReason{
		Kind:    domain.ReasonImplicitBuildSettingLinkage,
		Setting: "OTHER_LDFLAGS",
		Options: []string{"-framework", "C"},
	}, b.Dependencies[0].Reason)
	assert.True(t, b.Dependencies[0].Links)

	c := byName["C"]
	require.Len(t, c.Dependencies, 2)
	assert.Equal(t, domain.DependencyReason{
		Kind:       domain.ReasonImplicitBuildPhaseLinkage,
		Filename:   "A.framework",
		BuildPhase: "Link Binary",
	}, c.Dependencies[0].Reason)
	assert.True(t, c.Dependencies[0].Links)
	assert.Equal(t, "Embed", c.Dependencies[1].Reason.BuildPhase)
	assert.False(t, c.Dependencies[1].Links, "copy phases embed without linking")

	// The cycle A -> B -> C -> A is kept in the edges for later diagnosis.
	assert.Same(t, byName["A"], c.Dependencies[0].Target)

	req := request("A")
	req.UseImplicitDependencies = false
	res, err = resolver.New(resolver.Options{}).Resolve(ws, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "A"}, names(res.Targets))
}

func TestResolve_RequestScope(t *testing.T) {
	ws := workspace(t,
		&domain.Target{Name: "App", Kind: domain.ProductKindApplication, Dependencies: []string{"Fwk", "Lib"}},
		&domain.Target{Name: "Fwk", Kind: domain.ProductKindFramework},
		&domain.Target{Name: "Lib", Kind: domain.ProductKindStaticLibrary},
	)
	req := request("App", "Lib")
	req.Scope = domain.ScopeBuildRequest

	res, err := resolver.New(resolver.Options{}).Resolve(ws, req)
	require.NoError(t, err)
	assert.Equal(t, []string{"Lib", "App"}, names(res.Targets))
}

func diamondWorkspace(t *testing.T, dynamic bool) *domain.Workspace {
	t.Helper()
	return workspace(t,
		&domain.Target{Name: "App", Kind: domain.ProductKindApplication, Phases: []domain.BuildPhase{linkPhase("F1.framework", "F2.framework")}},
		&domain.Target{Name: "F1", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libL.a")}},
		&domain.Target{Name: "F2", Kind: domain.ProductKindFramework, Settings: map[string]string{"OTHER_LDFLAGS": "-lL"}},
		&domain.Target{Name: "L", Kind: domain.ProductKindStaticLibrary, DynamicVariant: dynamic, ResourceBundle: "L_Res"},
		&domain.Target{Name: "L_Res", Kind: domain.ProductKindResourceBundle},
	)
}

func TestResolve_DiamondWithoutDynamicVariant(t *testing.T) {
	ws := diamondWorkspace(t, false)

	_, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("App"))
	require.ErrorIs(t, err, domain.ErrDiamondProblem)
	assert.Contains(t, err.Error(),
		"Library 'L' is linked as a static library by 'F1' and 'F2'. This will result in duplication of library code.")

	t.Run("diagnosis disabled", func(t *testing.T) {
		_, err := resolver.New(resolver.Options{}).Resolve(ws, request("App"))
		require.NoError(t, err)
	})

	t.Run("suppressed by override", func(t *testing.T) {
		req := request("App")
		req.Parameters.Overrides = map[string]string{resolver.DisableDiamondDiagnosticSetting: "YES"}
		_, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, req)
		require.NoError(t, err)
	})

	t.Run("suppressed by consumer", func(t *testing.T) {
		ws := diamondWorkspace(t, false)
		f2, _ := ws.Target("F2")
		f2.Settings[resolver.DisableDiamondDiagnosticSetting] = "YES"
		_, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("App"))
		require.NoError(t, err)
	})
}

func TestResolve_DiamondPromotesDynamicVariant(t *testing.T) {
	ws := diamondWorkspace(t, true)

	res, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("App"))
	require.NoError(t, err)

	var libs []*domain.ConfiguredTarget
	for _, ct := range res.Targets {
		if ct.Target.Name == "L" {
			libs = append(libs, ct)
		}
	}
	require.Len(t, libs, 1)
	lib := libs[0]
	assert.Equal(t, "L-dynamic", lib.Name())
	assert.Equal(t, domain.ProductKindDynamicLibrary, lib.Kind())

	for _, ct := range res.Targets {
		if ct.Name() == "F1" || ct.Name() == "F2" {
			dep, ok := ct.DependsOn(lib)
			require.True(t, ok, ct.Name())
			assert.True(t, dep.Links)
		}
	}

	require.Len(t, lib.Dependencies, 1)
	assert.Equal(t, "L_Res", lib.Dependencies[0].Target.Name(), "the resource bundle follows the promoted library")
	assert.Equal(t, []string{"L_Res", "L-dynamic", "F1", "F2", "App"}, names(res.Targets))
}

func TestResolve_DiamondIgnoresToolsAndEmbedding(t *testing.T) {
	ws := workspace(t,
		&domain.Target{Name: "App", Kind: domain.ProductKindApplication, Phases: []domain.BuildPhase{
			linkPhase("F1.framework"),
			{Kind: domain.PhaseCopyFiles, Files: []string{"libL.a"}},
		}},
		&domain.Target{Name: "F1", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libL.a")}},
		&domain.Target{Name: "cli", Kind: domain.ProductKindTool, Phases: []domain.BuildPhase{linkPhase("libL.a")}},
		&domain.Target{Name: "L", Kind: domain.ProductKindStaticLibrary},
	)

	_, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("App", "cli"))
	require.NoError(t, err)
}

func TestResolve_DiamondNameCollision(t *testing.T) {
	core := map[string]string{"PRODUCT_NAME": "Core"}
	ws := workspace(t,
		&domain.Target{Name: "F1", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libCore.a")}},
		&domain.Target{Name: "F2", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libCore.a")}},
		&domain.Target{Name: "CoreTarget", Kind: domain.ProductKindPackageTarget, DynamicVariant: true, Settings: core},
		&domain.Target{Name: "CoreProduct", Kind: domain.ProductKindPackageProduct, Settings: core},
	)

	_, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("F1", "F2"))
	require.ErrorIs(t, err, domain.ErrDiamondProblem)
	assert.Contains(t, err.Error(),
		"Package target 'CoreTarget' is linked as a static library by 'F1' and 'F2', but cannot be built dynamically because there is a package product with the same name.")
}

func TestResolve_PrunesRedundantDynamicProduct(t *testing.T) {
	ws := workspace(t,
		&domain.Target{Name: "F1", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libP.a")}},
		&domain.Target{Name: "F2", Kind: domain.ProductKindFramework, Phases: []domain.BuildPhase{linkPhase("libP.a")}},
		&domain.Target{Name: "P", Kind: domain.ProductKindPackageProduct, DynamicVariant: true, Dependencies: []string{"PT"}},
		&domain.Target{Name: "PT", Kind: domain.ProductKindPackageTarget, DynamicVariant: true},
	)

	res, err := resolver.New(resolver.Options{DiagnoseDiamonds: true}).Resolve(ws, request("F1", "F2"))
	require.NoError(t, err)

	assert.Equal(t, []string{"PT-dynamic", "F1", "F2"}, names(res.Targets))
	for _, consumer := range res.Requested {
		require.Len(t, consumer.Dependencies, 1, consumer.Name())
		dep := consumer.Dependencies[0]
		assert.Equal(t, "PT-dynamic", dep.Target.Name())
		assert.Equal(t, domain.DependencyReason{Kind: domain.ReasonTransitive, Intermediate: "P"}, dep.Reason)
		assert.True(t, dep.Links)
	}
}
