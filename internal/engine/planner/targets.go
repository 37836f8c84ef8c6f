package planner

import (
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/engine/actions"
	"go.trai.ch/bake/internal/engine/resolver"
	"go.trai.ch/bake/internal/engine/tasktype"
)

// Build settings read by the planner.
const (
	SettingCC            = "CC"
	SettingLD            = "LD"
	SettingLibtool       = "LIBTOOL"
	SettingCFlags        = "OTHER_CFLAGS"
	SettingEnableModules = "CLANG_ENABLE_MODULES"
)

// targetPlan is the work of one configured target before gates are added.
type targetPlan struct {
	target      *domain.ConfiguredTarget
	tasks       []*domain.Task
	copied      map[string]string
	generated   map[string]string
	usesModules bool
}

// producer emits the phase tasks of one target. It only reads shared build state.
type producer struct {
	*build
	ct   *domain.ConfiguredTarget
	plan *targetPlan

	entry   domain.Node
	objDir  domain.Node
	objects []domain.Node
	// lastWriter tracks the virtual output of the latest task writing a path, so later
	// mutators of that path are chained to it.
	lastWriter map[domain.Node]domain.Node
}

func (b *build) produce(ct *domain.ConfiguredTarget) *targetPlan {
	p := &producer{
		build: b,
		ct:    ct,
		plan: &targetPlan{
			target:    ct,
			copied:    map[string]string{},
			generated: map[string]string{},
		},
		entry:      entryNode(ct),
		lastWriter: map[domain.Node]domain.Node{},
	}

	if b.req.Command == domain.CommandGeneratePreprocessedFile {
		for _, phase := range ct.Target.Phases {
			if phase.Kind == domain.PhaseSources {
				p.preprocess(phase)
			}
		}
		return p.plan
	}

	product := b.productPath(ct)
	if product != "" && isBundle(ct.Kind()) {
		p.add(&domain.Task{
			RuleInfo:            []string{tasktype.MkDir, product},
			Outputs:             []domain.Node{domain.PathNode(product)},
			Action:              actions.Mkdir(product),
			PreparesForIndexing: true,
		})
	}

	var linkFiles []string
	for i, phase := range ct.Target.Phases {
		switch phase.Kind {
		case domain.PhaseHeaders:
			p.copyFiles(phase, tasktype.CpHeader, p.headersDir())
		case domain.PhaseSources:
			p.compile(phase)
		case domain.PhaseResources:
			p.copyFiles(phase, tasktype.CpResource, p.resourcesDir())
		case domain.PhaseLink:
			linkFiles = append(linkFiles, phase.Files...)
		case domain.PhaseCopyFiles:
			p.embed(phase)
		case domain.PhaseScript:
			p.script(i, phase)
		}
	}
	p.link(linkFiles)
	return p.plan
}

func (p *producer) add(t *domain.Task) *domain.Task {
	t.ForTarget = p.ct
	t.WorkingDirectory = p.ct.Target.Dir
	t.Inputs = append([]domain.Node{p.entry}, t.Inputs...)
	p.plan.tasks = append(p.plan.tasks, t)
	return t
}

func (p *producer) source(file string) string {
	if filepath.IsAbs(file) {
		return filepath.Clean(file)
	}
	return filepath.Join(p.ct.Target.Dir, file)
}

func (p *producer) setting(name, fallback string) string {
	if v := p.ct.Setting(name); v != "" {
		return v
	}
	return fallback
}

func (p *producer) intermediates() string {
	return domain.IntermediatesDir(p.arenaOf(p.ct), p.ct.Parameters.Configuration, p.ct.Name())
}

func (p *producer) headersDir() string {
	if p.ct.Kind() == domain.ProductKindFramework {
		return filepath.Join(p.productPath(p.ct), "Headers")
	}
	return filepath.Join(p.productsDir(p.ct), "include", p.ct.ProductName())
}

func (p *producer) resourcesDir() string {
	if isBundle(p.ct.Kind()) {
		return filepath.Join(p.productPath(p.ct), "Resources")
	}
	return p.productsDir(p.ct)
}

func (p *producer) copyFiles(phase domain.BuildPhase, rule, dir string) {
	for _, file := range phase.Files {
		src := p.source(file)
		dst := filepath.Join(dir, filepath.Base(file))
		p.add(&domain.Task{
			RuleInfo:            []string{rule, src, dst},
			Inputs:              []domain.Node{domain.PathNode(src)},
			Outputs:             []domain.Node{domain.PathNode(dst)},
			Action:              actions.CopyFile(src, dst),
			PreparesForIndexing: rule == tasktype.CpHeader,
		})
		p.plan.copied[dst] = src
	}
}

// objectDir creates the directory compiler outputs are written to on first use.
func (p *producer) objectDir() domain.Node {
	if p.objDir.IsZero() {
		dir := filepath.Join(p.intermediates(), "Objects")
		p.add(&domain.Task{
			RuleInfo:            []string{tasktype.MkDir, dir},
			Outputs:             []domain.Node{domain.PathNode(dir)},
			Action:              actions.Mkdir(dir),
			PreparesForIndexing: true,
		})
		p.objDir = domain.PathNode(dir)
	}
	return p.objDir
}

func (p *producer) cflags() []string {
	flags := strings.Fields(p.ct.Setting(SettingCFlags))
	flags = append(flags, "-I"+filepath.Join(p.productsDir(p.ct), "include"))
	return flags
}

func (p *producer) compile(phase domain.BuildPhase) {
	modules := domain.SettingEnabled(p.ct.Setting(SettingEnableModules))
	cc := p.setting(SettingCC, "cc")
	for _, file := range phase.Files {
		src := p.source(file)
		obj := filepath.Join(p.objectDir().Name(), strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))+".o")

		inputs := []domain.Node{p.objDir, domain.PathNode(src)}
		cmd := append([]string{cc, "-c", src, "-o", obj}, p.cflags()...)
		if modules {
			p.plan.usesModules = true
			session := p.moduleSessionPath()
			inputs = append(inputs, domain.PathNode(session))
			cmd = append(cmd, "-fmodules", "-fmodules-cache-path="+filepath.Dir(session))
		}
		p.add(&domain.Task{
			RuleInfo:    []string{tasktype.CompileC, obj, src},
			CommandLine: cmd,
			Inputs:      inputs,
			Outputs:     []domain.Node{domain.PathNode(obj)},
		})
		p.objects = append(p.objects, domain.PathNode(obj))
	}
}

// preprocess emits tasks only for the sources named by the request.
func (p *producer) preprocess(phase domain.BuildPhase) {
	cc := p.setting(SettingCC, "cc")
	for _, file := range phase.Files {
		src := p.source(file)
		if !slices.ContainsFunc(p.req.Files, func(f string) bool { return p.source(f) == src }) {
			continue
		}
		out := filepath.Join(p.objectDir().Name(), filepath.Base(file)+".i")
		p.add(&domain.Task{
			RuleInfo:    []string{tasktype.Preprocess, out, src},
			CommandLine: append([]string{cc, "-E", src, "-o", out}, p.cflags()...),
			Inputs:      []domain.Node{p.objDir, domain.PathNode(src)},
			Outputs:     []domain.Node{domain.PathNode(out)},
		})
	}
}

// embed copies files or other targets' products into a subfolder of the product.
func (p *producer) embed(phase domain.BuildPhase) {
	root := p.productPath(p.ct)
	if root == "" {
		root = p.productsDir(p.ct)
	}
	dir := filepath.Join(root, phase.Destination)
	for _, file := range phase.Files {
		dst := filepath.Join(dir, filepath.Base(file))
		task := &domain.Task{Outputs: []domain.Node{domain.PathNode(dst)}}

		if dep, ok := p.productTarget(p.ct, file); ok {
			src := p.productPath(dep)
			task.RuleInfo = []string{tasktype.Copy, src, dst}
			task.Inputs = []domain.Node{domain.PathNode(src), endNode(dep)}
			if isBundle(dep.Kind()) {
				task.CommandLine = []string{"cp", "-R", src, dst}
			} else {
				task.Action = actions.CopyFile(src, dst)
			}
			p.plan.copied[dst] = src
		} else {
			src := p.source(file)
			task.RuleInfo = []string{tasktype.Copy, src, dst}
			task.Inputs = []domain.Node{domain.PathNode(src)}
			task.Action = actions.CopyFile(src, dst)
			p.plan.copied[dst] = src
		}
		p.add(task)
	}
}

// script writes the phase's script to an auxiliary file and runs it with the declared nodes.
func (p *producer) script(index int, phase domain.BuildPhase) {
	name := phase.DisplayName()
	scriptPath := filepath.Join(p.intermediates(), "Script-"+strconv.Itoa(index)+".sh")
	p.add(&domain.Task{
		RuleInfo:            []string{tasktype.WriteAuxiliaryFile, scriptPath},
		Outputs:             []domain.Node{domain.PathNode(scriptPath)},
		Action:              actions.WriteExecutable(scriptPath, "#!/bin/sh\nset -e\n"+phase.Script+"\n"),
		PreparesForIndexing: true,
	})

	marker := domain.VirtualNode("script-" + p.ct.Name() + "-" + p.ct.ShortID() + "-" + strconv.Itoa(index))
	task := &domain.Task{
		RuleInfo:    []string{tasktype.PhaseScriptExecution, name, scriptPath},
		CommandLine: []string{"/bin/sh", scriptPath},
		Environment: map[string]string{
			"SRCROOT":            p.ct.Target.Dir,
			"TARGET_NAME":        p.ct.Name(),
			"PRODUCT_NAME":       p.ct.ProductName(),
			"BUILT_PRODUCTS_DIR": p.productsDir(p.ct),
			"DERIVED_FILE_DIR":   filepath.Join(p.intermediates(), "DerivedSources"),
			"CONFIGURATION":      p.ct.Parameters.Configuration,
		},
		Inputs:              []domain.Node{domain.PathNode(scriptPath)},
		PreparesForIndexing: true,
	}

	for _, in := range phase.Inputs {
		var n domain.Node
		if strings.HasSuffix(in, "/") {
			n = domain.DirectoryTreeNode(p.source(in))
		} else {
			n = domain.PathNode(p.source(in))
		}
		task.Inputs = append(task.Inputs, n)
	}
	for _, out := range phase.Outputs {
		n := domain.PathNode(p.source(out))
		if task.ReadsNode(n) {
			if prior, ok := p.lastWriter[n]; ok && !task.ReadsNode(prior) {
				task.Inputs = append(task.Inputs, prior)
			}
		}
		task.Outputs = append(task.Outputs, n)
		p.lastWriter[n] = marker
		p.plan.generated[n.Name()] = name
	}
	if phase.DependencyInfo != "" {
		depInfo := p.source(phase.DependencyInfo)
		task.Environment[tasktype.DependencyInfoEnv] = depInfo
		task.Outputs = append(task.Outputs, domain.PathNode(depInfo))
	}
	task.Outputs = append(task.Outputs, marker)
	p.add(task)
}

// link archives or links the target's objects together with the products it links against.
func (p *producer) link(linkFiles []string) {
	kind := p.ct.Kind()
	binary := p.binaryPath(p.ct)
	if binary == "" || !(kind.IsLinkedBinary() || kind.IsStatic()) {
		return
	}

	var inputs []domain.Node
	var args []string
	addProduct := func(dep *domain.ConfiguredTarget) {
		path := p.binaryPath(dep)
		if path == "" {
			return
		}
		n := domain.PathNode(path)
		if slices.Contains(inputs, n) {
			return
		}
		inputs = append(inputs, n)
		args = append(args, path)
	}
	for _, file := range linkFiles {
		if dep, ok := p.productTarget(p.ct, file); ok {
			addProduct(dep)
			continue
		}
		args = append(args, file)
	}
	for _, d := range p.ct.Dependencies {
		if d.Links {
			addProduct(d.Target)
		}
	}

	objects := make([]string, len(p.objects))
	for i, o := range p.objects {
		objects[i] = o.Name()
	}

	if kind.IsStatic() {
		// Package products only bundle the archives of their package targets.
		cmd := append([]string{p.setting(SettingLibtool, "libtool"), "-static", "-o", binary}, objects...)
		if kind == domain.ProductKindPackageProduct {
			cmd = append(cmd, args...)
		}
		p.add(&domain.Task{
			RuleInfo:    []string{tasktype.Libtool, binary},
			CommandLine: cmd,
			Inputs:      append(slices.Clone(p.objects), inputs...),
			Outputs:     []domain.Node{domain.PathNode(binary)},
		})
		return
	}

	cmd := []string{p.setting(SettingLD, "cc"), "-o", binary}
	switch kind {
	case domain.ProductKindFramework, domain.ProductKindDynamicLibrary:
		cmd = append(cmd, "-shared")
	case domain.ProductKindBundle:
		cmd = append(cmd, "-bundle")
	}
	cmd = append(cmd, objects...)
	cmd = append(cmd, args...)
	cmd = append(cmd, strings.Fields(p.ct.Setting(resolver.LinkerFlagsSetting))...)

	linkInputs := slices.Clone(p.objects)
	if isBundle(kind) {
		linkInputs = append(linkInputs, domain.PathNode(p.productPath(p.ct)))
	}
	p.add(&domain.Task{
		RuleInfo:    []string{tasktype.Ld, binary},
		CommandLine: cmd,
		Inputs:      append(linkInputs, inputs...),
		Outputs:     []domain.Node{domain.PathNode(binary)},
	})
}

// isBundle reports whether products of kind are directories.
func isBundle(kind domain.ProductKind) bool {
	switch kind {
	case domain.ProductKindApplication, domain.ProductKindFramework, domain.ProductKindBundle, domain.ProductKindResourceBundle:
		return true
	default:
		return false
	}
}
