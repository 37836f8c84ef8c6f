package resolver

import (
	"slices"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

// resolveDiamonds promotes statically linked libraries that end up inside more than one linked
// binary to their dynamic variant, pass by pass until nothing changes. Libraries without a
// dynamic variant are reported. It returns the requested targets, which promotion may replace.
func (r *Resolver) resolveDiamonds(res *resolution, requested []*domain.ConfiguredTarget) ([]*domain.ConfiguredTarget, error) {
	for range r.opts.MaxPasses {
		changed := false
		var errs []error

		for _, lib := range res.reachable(requested) {
			if !lib.Kind().IsStatic() {
				continue
			}
			embedders := embeddersOf(lib, res.reachable(requested))
			if len(embedders) < 2 || diagnosticDisabled(lib, embedders) {
				continue
			}
			if !lib.Target.DynamicVariant {
				errs = append(errs, diamondError(lib, embedders, false))
				continue
			}
			if res.hasPackageProductNamed(lib) {
				errs = append(errs, diamondError(lib, embedders, true))
				continue
			}
			requested = res.promote(lib, requested)
			changed = true
		}

		if len(errs) > 0 {
			return nil, joinErrors(errs)
		}
		if !changed {
			break
		}
	}

	res.pruneDynamicProducts(requested)
	return requested, nil
}

// embeddersOf returns the linked binaries whose final link pulls in lib through static archives only.
// Tools are single final link consumers and never count.
func embeddersOf(lib *domain.ConfiguredTarget, targets []*domain.ConfiguredTarget) []*domain.ConfiguredTarget {
	var out []*domain.ConfiguredTarget
	for _, b := range targets {
		kind := b.Kind()
		if b == lib || !kind.IsLinkedBinary() || kind == domain.ProductKindTool {
			continue
		}
		if linksStatically(b, lib, make(map[*domain.ConfiguredTarget]bool)) {
			out = append(out, b)
		}
	}
	return out
}

func linksStatically(from, lib *domain.ConfiguredTarget, seen map[*domain.ConfiguredTarget]bool) bool {
	for _, d := range from.Dependencies {
		if !d.Links || seen[d.Target] {
			continue
		}
		seen[d.Target] = true
		if d.Target == lib {
			return true
		}
		if d.Target.Kind().IsStatic() && linksStatically(d.Target, lib, seen) {
			return true
		}
	}
	return false
}

func diagnosticDisabled(lib *domain.ConfiguredTarget, embedders []*domain.ConfiguredTarget) bool {
	if domain.SettingEnabled(lib.Setting(DisableDiamondDiagnosticSetting)) {
		return true
	}
	return slices.ContainsFunc(embedders, func(ct *domain.ConfiguredTarget) bool {
		return domain.SettingEnabled(ct.Setting(DisableDiamondDiagnosticSetting))
	})
}

func (res *resolution) hasPackageProductNamed(lib *domain.ConfiguredTarget) bool {
	for _, t := range res.ws.Targets {
		if t != lib.Target && t.Kind == domain.ProductKindPackageProduct && t.ProductName() == lib.ProductName() {
			return true
		}
	}
	return false
}

// promote replaces lib everywhere with its dynamic variant, which inherits lib's edges.
func (res *resolution) promote(lib *domain.ConfiguredTarget, requested []*domain.ConfiguredTarget) []*domain.ConfiguredTarget {
	dyn := res.configure(lib.Target, lib.Parameters.WithOverride(domain.BuildDynamicallySetting, "YES"))
	if res.state[dyn] != visited {
		dyn.Dependencies = slices.Clone(lib.Dependencies)
		res.state[dyn] = visited
	}

	for _, ct := range res.order {
		if ct == dyn {
			continue
		}
		ct.Dependencies = replaceEdge(ct.Dependencies, lib, dyn)
	}

	if i := slices.Index(res.order, lib); i >= 0 {
		if slices.Contains(res.order, dyn) {
			res.order = slices.Delete(res.order, i, i+1)
		} else {
			res.order[i] = dyn
		}
	}

	out := make([]*domain.ConfiguredTarget, len(requested))
	for i, ct := range requested {
		if ct == lib {
			ct = dyn
		}
		out[i] = ct
	}
	return out
}

// replaceEdge points edges at from to to, merging with an existing edge to to.
func replaceEdge(deps []domain.ResolvedDependency, from, to *domain.ConfiguredTarget) []domain.ResolvedDependency {
	i := slices.IndexFunc(deps, func(d domain.ResolvedDependency) bool { return d.Target == from })
	if i < 0 {
		return deps
	}
	if j := slices.IndexFunc(deps, func(d domain.ResolvedDependency) bool { return d.Target == to }); j >= 0 {
		deps[j].Links = deps[j].Links || deps[i].Links
		return slices.Delete(deps, i, i+1)
	}
	deps[i].Target = to
	return deps
}

// pruneDynamicProducts removes dynamic package product variants whose linked dependencies
// are all dynamic already. Their consumers inherit the dependencies as transitive edges.
func (res *resolution) pruneDynamicProducts(requested []*domain.ConfiguredTarget) {
	for _, p := range slices.Clone(res.order) {
		if !p.IsDynamicVariant() || p.Target.Kind != domain.ProductKindPackageProduct || slices.Contains(requested, p) {
			continue
		}
		redundant := slices.ContainsFunc(p.Dependencies, func(d domain.ResolvedDependency) bool { return d.Links })
		for _, d := range p.Dependencies {
			if d.Links && d.Target.Kind().IsStatic() {
				redundant = false
				break
			}
		}
		if !redundant {
			continue
		}

		for _, c := range res.order {
			i := slices.IndexFunc(c.Dependencies, func(d domain.ResolvedDependency) bool { return d.Target == p })
			if i < 0 {
				continue
			}
			via := c.Dependencies[i]
			deps := slices.Delete(slices.Clone(c.Dependencies), i, i+1)
			for _, inherited := range p.Dependencies {
				if slices.ContainsFunc(deps, func(d domain.ResolvedDependency) bool { return d.Target == inherited.Target }) {
					continue
				}
				deps = append(deps, domain.ResolvedDependency{
					Target: inherited.Target,
					Reason: domain.DependencyReason{Kind: domain.ReasonTransitive, Intermediate: p.Target.Name},
					Links:  via.Links && inherited.Links,
				})
			}
			c.Dependencies = deps
		}
		res.order = slices.DeleteFunc(res.order, func(ct *domain.ConfiguredTarget) bool { return ct == p })
	}
}

func diamondError(lib *domain.ConfiguredTarget, embedders []*domain.ConfiguredTarget, nameCollision bool) error {
	names := make([]string, len(embedders))
	for i, e := range embedders {
		names[i] = e.Name()
	}

	var b strings.Builder
	b.WriteString(kindLabel(lib.Kind()))
	b.WriteString(" '")
	b.WriteString(lib.Name())
	b.WriteString("' is linked as a static library by ")
	b.WriteString(quoteList(names))
	if nameCollision {
		b.WriteString(", but cannot be built dynamically because there is a package product with the same name.")
	} else {
		b.WriteString(". This will result in duplication of library code.")
	}

	err := zerr.Wrap(domain.ErrDiamondProblem, b.String())
	err = zerr.With(err, "target", lib.Name())
	return zerr.With(err, "consumers", names)
}

func kindLabel(kind domain.ProductKind) string {
	switch kind {
	case domain.ProductKindPackageTarget:
		return "Package target"
	case domain.ProductKindPackageProduct:
		return "Package product"
	default:
		return "Library"
	}
}

func quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = "'" + n + "'"
	}
	if len(quoted) <= 1 {
		return strings.Join(quoted, "")
	}
	return strings.Join(quoted[:len(quoted)-1], ", ") + " and " + quoted[len(quoted)-1]
}
