package resolver

import (
	"path/filepath"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// LinkerFlagsSetting is the build setting scanned for implicit linkage.
const LinkerFlagsSetting = "OTHER_LDFLAGS"

type edge struct {
	target *domain.Target
	reason domain.DependencyReason
	links  bool
}

type edgeList struct {
	edges []edge
	index map[string]int
}

// add appends an edge, or upgrades the linkage of an existing edge to the same target.
func (l *edgeList) add(e edge) {
	if i, ok := l.index[e.target.Name]; ok {
		l.edges[i].links = l.edges[i].links || e.links
		return
	}
	l.index[e.target.Name] = len(l.edges)
	l.edges = append(l.edges, e)
}

// edges lists the dependencies of ct: explicit ones first in declared order,
// then build phase references, then linker flags.
func (res *resolution) edges(ct *domain.ConfiguredTarget) ([]edge, error) {
	t := ct.Target
	list := &edgeList{index: make(map[string]int)}

	for _, name := range t.Dependencies {
		dep, ok := res.ws.Target(name)
		if !ok {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrTargetNotFound, name), "target", name), "dependent", t.Name)
		}
		if !res.inScope(dep) {
			continue
		}
		list.add(edge{
			target: dep,
			reason: domain.DependencyReason{Kind: domain.ReasonExplicit},
			links:  t.Kind.IsPackage() && dep.Kind.IsPackage(),
		})
	}

	if t.ResourceBundle != "" {
		bundle, ok := res.ws.Target(t.ResourceBundle)
		if !ok {
			return nil, zerr.With(zerr.With(zerr.Wrap(domain.ErrTargetNotFound, t.ResourceBundle), "target", t.ResourceBundle), "dependent", t.Name)
		}
		if res.inScope(bundle) {
			list.add(edge{target: bundle, reason: domain.DependencyReason{Kind: domain.ReasonExplicit}})
		}
	}

	if !res.req.UseImplicitDependencies {
		return list.edges, nil
	}

	for _, phase := range t.Phases {
		if phase.Kind != domain.PhaseLink && phase.Kind != domain.PhaseCopyFiles {
			continue
		}
		for _, file := range phase.Files {
			base := filepath.Base(file)
			dep, ok := res.ws.TargetByProduct(base)
			if !ok || dep == t || !res.inScope(dep) {
				continue
			}
			list.add(edge{
				target: dep,
				reason: domain.DependencyReason{
					Kind:       domain.ReasonImplicitBuildPhaseLinkage,
					Filename:   base,
					BuildPhase: phase.DisplayName(),
				},
				links: phase.Kind == domain.PhaseLink,
			})
		}
	}

	for _, ref := range linkerReferences(ct.Setting(LinkerFlagsSetting)) {
		for _, product := range ref.products {
			dep, ok := res.ws.TargetByProduct(product)
			if !ok || dep == t || !res.inScope(dep) {
				continue
			}
			list.add(edge{
				target: dep,
				reason: domain.DependencyReason{
					Kind:    domain.ReasonImplicitBuildSettingLinkage,
					Setting: LinkerFlagsSetting,
					Options: ref.options,
				},
				links: true,
			})
			break
		}
	}

	return list.edges, nil
}

// inScope reports whether edges to t are followed under the request's dependency scope.
func (res *resolution) inScope(t *domain.Target) bool {
	return res.req.Scope == domain.ScopeWorkspace || res.requested[t.Name]
}

type linkerReference struct {
	// options are the flag tokens as written, e.g. ["-framework", "C"].
	options []string
	// products are the candidate product file names, most specific first.
	products []string
}

// linkerReferences extracts product references from linker flags.
func linkerReferences(flags string) []linkerReference {
	fields := strings.Fields(flags)
	var refs []linkerReference
	for i := 0; i < len(fields); i++ {
		f := fields[i]
		switch {
		case (f == "-framework" || f == "-weak_framework") && i+1 < len(fields):
			name := fields[i+1]
			refs = append(refs, linkerReference{
				options:  []string{f, name},
				products: []string{name + ".framework"},
			})
			i++
		case strings.HasPrefix(f, "-l") && len(f) > 2:
			name := f[2:]
			refs = append(refs, linkerReference{
				options:  []string{f},
				products: []string{"lib" + name + ".a", "lib" + name + ".dylib"},
			})
		}
	}
	return refs
}
