// Package resolver turns the requested targets of a build into an ordered set of configured targets.
package resolver

import (
	"errors"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/zerr"
)

const (
	// DisableDiamondDiagnosticSetting silences the diamond diagnostic for a target or, as an override, for the build.
	DisableDiamondDiagnosticSetting = "DISABLE_DIAMOND_PROBLEM_DIAGNOSTIC"

	defaultMaxPasses = 8
)

// Options configures a Resolver.
type Options struct {
	// DiagnoseDiamonds enables diamond detection and dynamic promotion.
	DiagnoseDiamonds bool
	// MaxPasses bounds the number of diamond resolution passes.
	MaxPasses int
}

// Resolver computes configured target graphs.
type Resolver struct {
	opts Options
}

// New creates a Resolver.
func New(opts Options) *Resolver {
	if opts.MaxPasses <= 0 {
		opts.MaxPasses = defaultMaxPasses
	}
	return &Resolver{opts: opts}
}

// Result is the resolved target graph of a request.
type Result struct {
	// Targets lists configured targets with dependencies before dependents,
	// except along edges that close a cycle.
	Targets []*domain.ConfiguredTarget
	// Requested are the configured targets of the request, in request order.
	Requested []*domain.ConfiguredTarget
}

type visitState uint8

const (
	unvisited visitState = iota
	visiting
	visited
)

type resolution struct {
	ws  *domain.Workspace
	req *domain.BuildRequest

	byID      map[string]*domain.ConfiguredTarget
	state     map[*domain.ConfiguredTarget]visitState
	order     []*domain.ConfiguredTarget
	requested map[string]bool
}

// Resolve walks the dependencies of the requested targets depth-first in declaration order
// and applies diamond resolution.
func (r *Resolver) Resolve(ws *domain.Workspace, req *domain.BuildRequest) (*Result, error) {
	if len(req.Targets) == 0 {
		return nil, domain.ErrNoTargetsSpecified
	}

	res := &resolution{
		ws:        ws,
		req:       req,
		byID:      make(map[string]*domain.ConfiguredTarget),
		state:     make(map[*domain.ConfiguredTarget]visitState),
		requested: make(map[string]bool, len(req.Targets)),
	}
	for _, bt := range req.Targets {
		res.requested[bt.Name] = true
	}

	requested := make([]*domain.ConfiguredTarget, 0, len(req.Targets))
	for _, bt := range req.Targets {
		t, ok := ws.Target(bt.Name)
		if !ok {
			return nil, zerr.With(zerr.Wrap(domain.ErrTargetNotFound, bt.Name), "target", bt.Name)
		}
		params := req.Parameters
		if bt.Parameters != nil {
			params = *bt.Parameters
		}
		ct := res.configure(t, params)
		if err := res.visit(ct); err != nil {
			return nil, err
		}
		requested = append(requested, ct)
	}

	if r.opts.DiagnoseDiamonds && !domain.SettingEnabled(req.Parameters.Overrides[DisableDiamondDiagnosticSetting]) {
		var err error
		requested, err = r.resolveDiamonds(res, requested)
		if err != nil {
			return nil, err
		}
	}

	return &Result{
		Targets:   res.reachable(requested),
		Requested: requested,
	}, nil
}

func (res *resolution) configure(t *domain.Target, params domain.BuildParameters) *domain.ConfiguredTarget {
	ct := domain.NewConfiguredTarget(t, params)
	if existing, ok := res.byID[ct.ID()]; ok {
		return existing
	}
	res.byID[ct.ID()] = ct
	return ct
}

// visit computes the edges of ct and appends it to the order after its dependencies.
// An edge to a target that is still being visited closes a cycle; it is kept but not followed.
func (res *resolution) visit(ct *domain.ConfiguredTarget) error {
	switch res.state[ct] {
	case visiting, visited:
		return nil
	}
	res.state[ct] = visiting

	edges, err := res.edges(ct)
	if err != nil {
		return err
	}

	depParams := ct.Parameters
	if ct.IsDynamicVariant() {
		depParams = withoutOverride(depParams, domain.BuildDynamicallySetting)
	}
	for _, e := range edges {
		dep := res.configure(e.target, depParams)
		ct.Dependencies = append(ct.Dependencies, domain.ResolvedDependency{Target: dep, Reason: e.reason, Links: e.links})
		if err := res.visit(dep); err != nil {
			return err
		}
	}

	res.state[ct] = visited
	res.order = append(res.order, ct)
	return nil
}

// reachable filters the order down to targets reachable from the requested ones.
func (res *resolution) reachable(requested []*domain.ConfiguredTarget) []*domain.ConfiguredTarget {
	seen := make(map[*domain.ConfiguredTarget]bool)
	var walk func(ct *domain.ConfiguredTarget)
	walk = func(ct *domain.ConfiguredTarget) {
		if seen[ct] {
			return
		}
		seen[ct] = true
		for _, d := range ct.Dependencies {
			walk(d.Target)
		}
	}
	for _, ct := range requested {
		walk(ct)
	}

	out := make([]*domain.ConfiguredTarget, 0, len(res.order))
	for _, ct := range res.order {
		if seen[ct] {
			out = append(out, ct)
		}
	}
	return out
}

func withoutOverride(p domain.BuildParameters, name string) domain.BuildParameters {
	if _, ok := p.Overrides[name]; !ok {
		return p
	}
	overrides := make(map[string]string, len(p.Overrides))
	for k, v := range p.Overrides {
		if k != name {
			overrides[k] = v
		}
	}
	if len(overrides) == 0 {
		overrides = nil
	}
	p.Overrides = overrides
	return p
}

// joinErrors keeps nil when there is nothing to report.
func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}
