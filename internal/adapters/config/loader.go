// Package config loads bake.yaml, bake.hcl and bake.work.yaml into the workspace model.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"path/filepath"
	"regexp"
	"slices"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/zerr"
	"gopkg.in/yaml.v3"
)

// PatternResolver expands glob patterns relative to a directory.
type PatternResolver interface {
	ResolvePatterns(patterns []string, root string) ([]string, error)
}

// Mode represents how the configuration was found.
type Mode string

const (
	// ModeWorkspace indicates a bake.work.yaml listing project directories.
	ModeWorkspace Mode = "workspace"
	// ModeStandalone indicates a single project file.
	ModeStandalone Mode = "standalone"
)

var validProjectNameRegex = regexp.MustCompile("^[a-zA-Z0-9_-]+$")

var _ ports.ConfigLoader = (*Loader)(nil)

// Loader implements ports.ConfigLoader.
type Loader struct {
	logger   ports.Logger
	fs       FileSystem
	resolver PatternResolver
}

// NewLoader creates a Loader reading from the OS filesystem.
func NewLoader(logger ports.Logger, resolver PatternResolver) *Loader {
	return &Loader{logger: logger, fs: NewOSFS(), resolver: resolver}
}

// WithFileSystem replaces the filesystem the loader reads from.
func (l *Loader) WithFileSystem(fsys FileSystem) *Loader {
	l.fs = fsys
	return l
}

// loadedProject is a parsed project file together with where it came from.
type loadedProject struct {
	path string
	dir  string
	file *Projectfile
}

// Load discovers the configuration from cwd and builds the workspace.
func (l *Loader) Load(cwd string) (*domain.Workspace, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	var (
		root     string
		settings map[string]string
		projects []*loadedProject
	)
	configPaths := []string{configPath}

	switch mode {
	case ModeWorkspace:
		var wf Workfile
		if err := l.readYAML(configPath, &wf); err != nil {
			return nil, err
		}
		root = resolveRoot(configPath, wf.Root)
		settings = wf.Settings
		projects, err = l.loadWorkspaceProjects(root, wf.Projects)
		if err != nil {
			return nil, err
		}
		for _, p := range projects {
			configPaths = append(configPaths, p.path)
		}
	default:
		p, err := l.readProject(configPath)
		if err != nil {
			return nil, err
		}
		if p.file.Project != "" && !validProjectNameRegex.MatchString(p.file.Project) {
			return nil, zerr.With(zerr.Wrap(domain.ErrInvalidProjectName, ""), "project_name", p.file.Project)
		}
		root = p.dir
		settings = p.file.Settings
		projects = []*loadedProject{p}
	}

	var targets []*domain.Target
	schemes := make(map[string]*domain.Scheme)
	for _, p := range projects {
		projectSettings := mergeSettings(settings, p.file.Settings)
		for _, dto := range p.file.Targets {
			t, err := l.buildTarget(dto, p, projectSettings)
			if err != nil {
				return nil, zerr.With(err, "config", p.path)
			}
			targets = append(targets, t)
		}
		for _, name := range slices.Sorted(maps.Keys(p.file.Schemes)) {
			if _, exists := schemes[name]; exists {
				l.logger.Warn(fmt.Sprintf("scheme %q in %s is already defined, ignoring", name, p.path))
				continue
			}
			schemes[name] = buildScheme(name, p.file.Schemes[name])
		}
	}

	ws, err := domain.NewWorkspace(root, targets)
	if err != nil {
		return nil, err
	}
	maps.Copy(ws.Settings, settings)
	ws.Schemes = schemes
	ws.ConfigPaths = configPaths
	env, err := l.loadEnvironment(root)
	if err != nil {
		return nil, err
	}
	ws.Environment = env
	return ws, nil
}

// DiscoverConfigPaths returns the configuration files of the workspace found from cwd with their modification times.
func (l *Loader) DiscoverConfigPaths(cwd string) (map[string]int64, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return nil, err
	}

	paths := []string{configPath}
	root := filepath.Dir(configPath)
	if mode == ModeWorkspace {
		var wf Workfile
		if err := l.readYAML(configPath, &wf); err != nil {
			return nil, err
		}
		root = resolveRoot(configPath, wf.Root)
		dirs, err := l.projectDirs(root, wf.Projects)
		if err != nil {
			return nil, err
		}
		for _, dir := range dirs {
			if p, ok := l.projectFileIn(dir); ok {
				paths = append(paths, p)
			}
		}
	}
	paths = append(paths, filepath.Join(root, domain.EnvFileName))

	mtimes := make(map[string]int64, len(paths))
	for _, p := range paths {
		info, err := l.fs.Stat(p)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, zerr.With(domain.Wrap(domain.ErrPathStatFailed, err), "path", p)
		}
		mtimes[p] = info.ModTime().UnixNano()
	}
	return mtimes, nil
}

// DiscoverRoot returns the workspace root for cwd.
func (l *Loader) DiscoverRoot(cwd string) (string, error) {
	configPath, mode, err := l.findConfiguration(cwd)
	if err != nil {
		return "", err
	}
	if mode == ModeStandalone {
		return filepath.Dir(configPath), nil
	}
	var wf Workfile
	if err := l.readYAML(configPath, &wf); err != nil {
		return "", err
	}
	return resolveRoot(configPath, wf.Root), nil
}

// findConfiguration walks up from cwd. A workfile anywhere above wins over the nearest project file.
func (l *Loader) findConfiguration(cwd string) (string, Mode, error) {
	abs, err := filepath.Abs(cwd)
	if err != nil {
		return "", "", domain.Wrap(domain.ErrFailedToGetRoot, err)
	}

	var standaloneCandidate string
	for currentDir := abs; ; {
		workfilePath := filepath.Join(currentDir, domain.WorkFileName)
		if l.exists(workfilePath) {
			return workfilePath, ModeWorkspace, nil
		}
		if standaloneCandidate == "" {
			if p, ok := l.projectFileIn(currentDir); ok {
				standaloneCandidate = p
			}
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			break
		}
		currentDir = parentDir
	}

	if standaloneCandidate != "" {
		return standaloneCandidate, ModeStandalone, nil
	}
	return "", "", zerr.With(zerr.Wrap(domain.ErrConfigNotFound, ""), "cwd", cwd)
}

// projectFileIn returns the project file of dir, preferring bake.yaml over bake.hcl.
func (l *Loader) projectFileIn(dir string) (string, bool) {
	for _, name := range []string{domain.ProjectFileName, domain.HCLProjectFileName} {
		p := filepath.Join(dir, name)
		if l.exists(p) {
			return p, true
		}
	}
	return "", false
}

func (l *Loader) exists(path string) bool {
	info, err := l.fs.Stat(path)
	return err == nil && !info.IsDir()
}

func (l *Loader) projectDirs(root string, patterns []string) ([]string, error) {
	matches, err := l.resolver.ResolvePatterns(patterns, root)
	if err != nil {
		return nil, zerr.Wrap(err, "failed to resolve workspace projects")
	}

	var dirs []string
	for _, m := range matches {
		dir := m
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(root, dir)
		}
		info, err := l.fs.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		dirs = append(dirs, dir)
	}
	slices.Sort(dirs)
	return slices.Compact(dirs), nil
}

func (l *Loader) loadWorkspaceProjects(root string, patterns []string) ([]*loadedProject, error) {
	dirs, err := l.projectDirs(root, patterns)
	if err != nil {
		return nil, err
	}

	projectNames := make(map[string]string)
	var projects []*loadedProject
	for _, dir := range dirs {
		relPath, _ := filepath.Rel(root, dir)

		path, ok := l.projectFileIn(dir)
		if !ok {
			l.logger.Warn(fmt.Sprintf("%s missing in project %s, skipping", domain.ProjectFileName, relPath))
			continue
		}
		p, err := l.readProject(path)
		if err != nil {
			return nil, zerr.With(err, "directory", relPath)
		}

		name := p.file.Project
		if name == "" {
			return nil, zerr.With(zerr.Wrap(domain.ErrMissingProjectName, ""), "directory", relPath)
		}
		if !validProjectNameRegex.MatchString(name) {
			err := zerr.With(zerr.Wrap(domain.ErrInvalidProjectName, ""), "project_name", name)
			return nil, zerr.With(err, "directory", relPath)
		}
		if existingPath, exists := projectNames[name]; exists {
			err := zerr.With(zerr.Wrap(domain.ErrDuplicateProjectName, ""), "project_name", name)
			err = zerr.With(err, "first_occurrence", existingPath)
			return nil, zerr.With(err, "duplicate_at", relPath)
		}
		projectNames[name] = relPath
		projects = append(projects, p)
	}
	return projects, nil
}

func (l *Loader) readProject(path string) (*loadedProject, error) {
	var pf *Projectfile
	if filepath.Base(path) == domain.HCLProjectFileName {
		data, err := l.fs.ReadFile(path)
		if err != nil {
			return nil, zerr.With(domain.Wrap(domain.ErrConfigReadFailed, err), "path", path)
		}
		if pf, err = parseHCL(data, path); err != nil {
			return nil, zerr.With(err, "path", path)
		}
	} else {
		pf = &Projectfile{}
		if err := l.readYAML(path, pf); err != nil {
			return nil, err
		}
	}
	return &loadedProject{path: path, dir: filepath.Dir(path), file: pf}, nil
}

func (l *Loader) readYAML(path string, target any) error {
	data, err := l.fs.ReadFile(path)
	if err != nil {
		return zerr.With(domain.Wrap(domain.ErrConfigReadFailed, err), "path", path)
	}
	if err := yaml.Unmarshal(data, target); err != nil {
		return zerr.With(domain.Wrap(domain.ErrConfigParseFailed, err), "path", path)
	}
	return nil
}

func (l *Loader) buildTarget(dto *TargetDTO, p *loadedProject, projectSettings map[string]string) (*domain.Target, error) {
	kind, ok := domain.ParseProductKind(dto.Kind)
	if !ok {
		err := zerr.With(zerr.Wrap(domain.ErrInvalidProductKind, ""), "kind", dto.Kind)
		return nil, zerr.With(err, "target", dto.Name)
	}

	t := &domain.Target{
		Name:           dto.Name,
		Project:        p.file.Project,
		Dir:            p.dir,
		Kind:           kind,
		Dependencies:   slices.Clone(dto.Dependencies),
		Settings:       mergeSettings(projectSettings, dto.Settings),
		DynamicVariant: dto.DynamicVariant,
		ResourceBundle: dto.ResourceBundle,
	}

	for i, ph := range dto.Phases {
		phase, err := l.buildPhase(ph, p.dir)
		if err != nil {
			err = zerr.With(err, "phase", i)
			return nil, zerr.With(err, "target", dto.Name)
		}
		t.Phases = append(t.Phases, phase)
	}
	return t, nil
}

// buildPhase expands file globs of phases that list sources. Link and copy phases may name products and keep their files.
func (l *Loader) buildPhase(dto *PhaseDTO, dir string) (domain.BuildPhase, error) {
	kind, ok := domain.ParsePhaseKind(dto.Kind)
	if !ok {
		return domain.BuildPhase{}, zerr.With(zerr.Wrap(domain.ErrInvalidPhaseKind, ""), "kind", dto.Kind)
	}

	files := slices.Clone(dto.Files)
	switch kind {
	case domain.PhaseHeaders, domain.PhaseSources, domain.PhaseResources:
		resolved, err := l.resolver.ResolvePatterns(dto.Files, dir)
		if err != nil {
			return domain.BuildPhase{}, err
		}
		files = resolved
	}

	return domain.BuildPhase{
		Kind:           kind,
		Name:           dto.Name,
		Files:          files,
		Destination:    dto.Destination,
		Script:         dto.Script,
		Inputs:         slices.Clone(dto.Inputs),
		Outputs:        slices.Clone(dto.Outputs),
		DependencyInfo: dto.DependencyInfo,
	}, nil
}

func buildScheme(name string, dto *SchemeDTO) *domain.Scheme {
	s := &domain.Scheme{Name: name, ParallelizeTargets: true}
	if dto == nil {
		return s
	}
	s.Targets = slices.Clone(dto.Targets)
	if dto.ParallelizeTargets != nil {
		s.ParallelizeTargets = *dto.ParallelizeTargets
	}
	return s
}

// mergeSettings returns base overlaid with override.
func mergeSettings(base, override map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(override))
	maps.Copy(result, base)
	maps.Copy(result, override)
	return result
}

func resolveRoot(configPath, configuredRoot string) string {
	configDir := filepath.Dir(configPath)
	if configuredRoot == "" {
		return filepath.Clean(configDir)
	}
	if filepath.IsAbs(configuredRoot) {
		return filepath.Clean(configuredRoot)
	}
	return filepath.Clean(filepath.Join(configDir, configuredRoot))
}
