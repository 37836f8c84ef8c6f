// Package planner turns resolved targets into a finalized build description.
package planner

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/actions"
	"go.trai.ch/bake/internal/engine/cycles"
	"go.trai.ch/bake/internal/engine/resolver"
	"go.trai.ch/bake/internal/engine/tasktype"
	"go.trai.ch/zerr"
	"golang.org/x/sync/errgroup"
)

// ModuleSessionFileName is written into the module cache when module-enabled compilation occurs.
const ModuleSessionFileName = "Session.modulevalidation"

// Options configures a Planner.
type Options struct {
	// Registry assigns task types. Nil selects tasktype.Default().
	Registry *tasktype.Registry
	// CaptureDir enables the captured build info when non-empty.
	CaptureDir string
	// Logger receives raw cycle traces at debug level. It may be nil.
	Logger ports.Logger
}

// Planner builds task graphs for build requests.
type Planner struct {
	resolver *resolver.Resolver
	opts     Options
}

// New creates a Planner that resolves targets with res.
func New(res *resolver.Resolver, opts Options) *Planner {
	if opts.Registry == nil {
		opts.Registry = tasktype.Default()
	}
	return &Planner{resolver: res, opts: opts}
}

// Signature fingerprints everything in req that shapes the build description.
func Signature(req *domain.BuildRequest) string {
	h := xxhash.New()
	write := func(parts ...string) {
		for _, p := range parts {
			_, _ = h.WriteString(p)
			_, _ = h.Write([]byte{0})
		}
	}
	for _, t := range req.Targets {
		write("target", t.Name)
		if t.Parameters != nil {
			write(t.Parameters.Key(), string(t.Parameters.Action), t.Parameters.ArenaRoot)
		}
	}
	write(req.Parameters.Key(), string(req.Parameters.Action), req.Parameters.ArenaRoot)
	write(strconv.Itoa(int(req.Scope)), req.Command.String(), req.SchemeCommand)
	write(strconv.FormatBool(req.UseParallelTargets), strconv.FormatBool(req.UseImplicitDependencies))
	write(req.Files...)
	return fmt.Sprintf("%016x", h.Sum64())
}

// Plan resolves req against ws and produces the build description.
// Construction errors are joined; each carries its own sentinel.
func (p *Planner) Plan(ctx context.Context, ws *domain.Workspace, req *domain.BuildRequest) (*domain.BuildDescription, error) {
	parallel, err := targetsBuildInParallel(ws, req)
	if err != nil {
		return nil, err
	}

	resolved, err := p.resolver.Resolve(ws, req)
	if err != nil {
		return nil, err
	}

	arena := req.Parameters.ArenaRoot
	if arena == "" {
		arena = filepath.Join(ws.Root, domain.DefaultArenaPath())
	}
	b := &build{
		ws:      ws,
		req:     req,
		arena:   arena,
		planned: resolved.Targets,
	}

	plans := make([]*targetPlan, len(resolved.Targets))
	g, gctx := errgroup.WithContext(ctx)
	for i, ct := range resolved.Targets {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			plans[i] = b.produce(ct)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tasks, warnings, copied, generated, modules := b.assemble(plans, parallel)
	p.opts.Registry.Assign(tasks)

	desc, err := domain.NewBuildDescription(tasks)
	if err != nil {
		return nil, err
	}
	desc.Signature = Signature(req)
	desc.Targets = resolved.Targets
	desc.TargetsBuildInParallel = parallel
	desc.CopiedPathMap = copied
	desc.GeneratedFilesPathMap = generated
	if modules {
		desc.ModuleSessionFilePath = b.moduleSessionPath()
	}
	desc.Warnings = append(warnings, desc.Graph().Warnings()...)
	if p.opts.CaptureDir != "" {
		desc.CapturedBuildInfo = capture(desc.Signature, resolved.Targets)
	}

	var errs []error
	errs = append(errs, desc.Graph().MutationErrors()...)
	errs = append(errs, duplicateErrors(desc)...)
	errs = append(errs, p.cycleErrors(desc, req, b.endGates(resolved.Requested))...)
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return desc, nil
}

// targetsBuildInParallel is false when the request or its scheme asks for manual target order.
func targetsBuildInParallel(ws *domain.Workspace, req *domain.BuildRequest) (bool, error) {
	if req.SchemeCommand == "" {
		return req.UseParallelTargets, nil
	}
	scheme, ok := ws.Schemes[req.SchemeCommand]
	if !ok {
		return false, zerr.With(zerr.Wrap(domain.ErrSchemeNotFound, req.SchemeCommand), "scheme", req.SchemeCommand)
	}
	return req.UseParallelTargets && scheme.ParallelizeTargets, nil
}

func (p *Planner) cycleErrors(desc *domain.BuildDescription, req *domain.BuildRequest, roots []*domain.Task) []error {
	found := desc.Graph().CyclesFrom(roots)
	if len(found) == 0 {
		return nil
	}
	formatter := cycles.New(desc, req)
	errs := make([]error, 0, len(found))
	for _, d := range formatter.FormatAll(found) {
		if p.opts.Logger != nil {
			p.opts.Logger.Debug(d.RawTrace)
		}
		errs = append(errs, cycles.NewError(d))
	}
	return errs
}

// duplicateErrors reports outputs written by independent tasks and drops them from the copied path map.
func duplicateErrors(desc *domain.BuildDescription) []error {
	var errs []error
	for _, dup := range desc.Graph().Duplicates() {
		path := dup.Node.Name()
		delete(desc.CopiedPathMap, path)

		lines := []string{"Multiple commands produce '" + path + "'"}
		for i, t := range dup.Tasks {
			line, ok := tasktype.Describe(t)
			if !ok {
				line = "Command: " + t.Key()
			}
			lines = append(lines, strconv.Itoa(i+1)+") "+line)
		}
		errs = append(errs, zerr.With(zerr.Wrap(domain.ErrDuplicateOutput, strings.Join(lines, "\n")), "output", path))
	}
	return errs
}

func capture(signature string, targets []*domain.ConfiguredTarget) *domain.CapturedBuildInfo {
	info := &domain.CapturedBuildInfo{Signature: signature}
	for _, ct := range targets {
		settings := make(map[string]string, len(ct.Target.Settings)+len(ct.Parameters.Overrides))
		for k, v := range ct.Target.Settings {
			settings[k] = v
		}
		for k, v := range ct.Parameters.Overrides {
			settings[k] = v
		}
		if len(settings) == 0 {
			settings = nil
		}
		entry := domain.CapturedTargetInfo{
			Name:     ct.Name(),
			Project:  ct.Target.Project,
			Kind:     string(ct.Kind()),
			Settings: settings,
		}
		for _, d := range ct.Dependencies {
			entry.Dependencies = append(entry.Dependencies, d.Target.Name())
		}
		info.Targets = append(info.Targets, entry)
	}
	return info
}

// build holds the request-wide state shared by the per-target producers. It is read-only
// while targets are produced concurrently.
type build struct {
	ws      *domain.Workspace
	req     *domain.BuildRequest
	arena   string
	planned []*domain.ConfiguredTarget

	gates map[*domain.ConfiguredTarget][2]*domain.Task
}

func (b *build) arenaOf(ct *domain.ConfiguredTarget) string {
	if ct.Parameters.ArenaRoot != "" {
		return ct.Parameters.ArenaRoot
	}
	return b.arena
}

func (b *build) productsDir(ct *domain.ConfiguredTarget) string {
	return domain.ProductsDir(b.arenaOf(ct), ct.Parameters.Configuration)
}

// productPath is empty for targets without a product.
func (b *build) productPath(ct *domain.ConfiguredTarget) string {
	name := domain.ProductFileName(ct.ProductName(), ct.Kind())
	if name == "" {
		return ""
	}
	return filepath.Join(b.productsDir(ct), name)
}

func (b *build) binaryPath(ct *domain.ConfiguredTarget) string {
	product := b.productPath(ct)
	if product == "" {
		return ""
	}
	return domain.BinaryPath(product, ct.ProductName(), ct.Kind())
}

func (b *build) moduleSessionPath() string {
	return filepath.Join(domain.ModuleCacheDir(b.arena), ModuleSessionFileName)
}

// productTarget finds the configured target building fileName, preferring a dependency of ct.
func (b *build) productTarget(ct *domain.ConfiguredTarget, fileName string) (*domain.ConfiguredTarget, bool) {
	for _, d := range ct.Dependencies {
		// A promoted dependency is still referenced by its static product name.
		if domain.ProductFileName(d.Target.ProductName(), d.Target.Kind()) == fileName ||
			domain.ProductFileName(d.Target.ProductName(), d.Target.Target.Kind) == fileName {
			return d.Target, true
		}
	}
	t, ok := b.ws.TargetByProduct(fileName)
	if !ok {
		return nil, false
	}
	idx := slices.IndexFunc(b.planned, func(p *domain.ConfiguredTarget) bool { return p.Target == t })
	if idx < 0 {
		return nil, false
	}
	return b.planned[idx], true
}

func (b *build) endGates(targets []*domain.ConfiguredTarget) []*domain.Task {
	out := make([]*domain.Task, 0, len(targets))
	for _, ct := range targets {
		if g, ok := b.gates[ct]; ok {
			out = append(out, g[1])
		}
	}
	return out
}

// assemble merges the per-target plans in target order, adds gates and request-wide tasks,
// and drops identical copies of the same file made by different targets.
func (b *build) assemble(plans []*targetPlan, parallel bool) (
	tasks []*domain.Task, warnings []string, copied, generated map[string]string, modules bool,
) {
	copied = map[string]string{}
	generated = map[string]string{}
	b.gates = make(map[*domain.ConfiguredTarget][2]*domain.Task, len(plans))

	var global []*domain.Task
	buildDirs := map[string]domain.Node{}
	for _, plan := range plans {
		dir := b.productsDir(plan.target)
		if _, ok := buildDirs[dir]; ok {
			continue
		}
		buildDirs[dir] = domain.PathNode(dir)
		global = append(global, &domain.Task{
			RuleInfo:            []string{tasktype.CreateBuildDirectory, dir},
			Outputs:             []domain.Node{domain.PathNode(dir)},
			Action:              actions.Mkdir(dir),
			PreparesForIndexing: true,
		})
	}

	for _, plan := range plans {
		modules = modules || plan.usesModules
	}
	if modules {
		path := b.moduleSessionPath()
		global = append(global, &domain.Task{
			RuleInfo:            []string{tasktype.WriteAuxiliaryFile, path},
			Outputs:             []domain.Node{domain.PathNode(path)},
			Action:              actions.WriteFile(path, Signature(b.req)+"\n"),
			PreparesForIndexing: true,
		})
	}
	tasks = append(tasks, global...)

	copyOwner := map[string]*domain.ConfiguredTarget{}
	var previous *domain.ConfiguredTarget
	for _, plan := range plans {
		ct := plan.target
		entry := &domain.Task{
			RuleInfo:           []string{domain.GateRule, gateName(ct, "entry")},
			Inputs:             []domain.Node{buildDirs[b.productsDir(ct)]},
			Outputs:            []domain.Node{entryNode(ct)},
			ForTarget:          ct,
			TargetDependencies: ct.Dependencies,
		}
		for _, d := range ct.Dependencies {
			if slices.Contains(b.planned, d.Target) {
				entry.Inputs = append(entry.Inputs, endNode(d.Target))
			}
		}
		if !parallel && previous != nil && !slices.ContainsFunc(ct.Dependencies, func(d domain.ResolvedDependency) bool {
			return d.Target == previous
		}) {
			entry.Inputs = append(entry.Inputs, endNode(previous))
		}
		previous = ct

		end := &domain.Task{
			RuleInfo:  []string{domain.GateRule, gateName(ct, "end")},
			Inputs:    []domain.Node{entryNode(ct)},
			Outputs:   []domain.Node{endNode(ct)},
			ForTarget: ct,
		}

		kept := make([]*domain.Task, 0, len(plan.tasks))
		for _, t := range plan.tasks {
			if isCopy(t) {
				dst := t.RuleInfo[len(t.RuleInfo)-1]
				if owner, dup := copyOwner[t.Key()]; dup {
					warnings = append(warnings,
						"Multiple commands produce '"+dst+"', picked with target '"+owner.Name()+"'")
					continue
				}
				copyOwner[t.Key()] = ct
			}
			kept = append(kept, t)
			end.Inputs = append(end.Inputs, t.Outputs...)
		}
		for dst, src := range plan.copied {
			copied[dst] = src
		}
		for out, phase := range plan.generated {
			generated[out] = phase
		}

		b.gates[ct] = [2]*domain.Task{entry, end}
		tasks = append(tasks, entry)
		tasks = append(tasks, kept...)
		tasks = append(tasks, end)
	}
	return tasks, warnings, copied, generated, modules
}

func gateName(ct *domain.ConfiguredTarget, suffix string) string {
	return "target-" + ct.Name() + "-" + ct.ShortID() + "-" + suffix
}

func entryNode(ct *domain.ConfiguredTarget) domain.Node {
	return domain.VirtualNode(gateName(ct, "entry"))
}

func endNode(ct *domain.ConfiguredTarget) domain.Node {
	return domain.VirtualNode(gateName(ct, "end"))
}

func isCopy(t *domain.Task) bool {
	switch t.RuleType() {
	case tasktype.CpHeader, tasktype.CpResource, tasktype.Copy:
		return true
	default:
		return false
	}
}
