package domain

// BuildCommand selects the variant of work a build performs.
type BuildCommand uint8

const (
	// CommandBuild runs every task that is out of date.
	CommandBuild BuildCommand = iota
	// CommandPrepareForIndexing runs only tasks flagged as preparing for indexing.
	CommandPrepareForIndexing
	// CommandCleanBuildFolder removes the derived data root instead of building.
	CommandCleanBuildFolder
	// CommandGeneratePreprocessedFile preprocesses the requested files only.
	CommandGeneratePreprocessedFile
)

func (c BuildCommand) String() string {
	switch c {
	case CommandPrepareForIndexing:
		return "prepareForIndexing"
	case CommandCleanBuildFolder:
		return "cleanBuildFolder"
	case CommandGeneratePreprocessedFile:
		return "generatePreprocessedFile"
	default:
		return "build"
	}
}

// DependencyScope controls which targets besides the requested ones are built.
type DependencyScope uint8

const (
	// ScopeWorkspace follows dependencies across the whole workspace.
	ScopeWorkspace DependencyScope = iota
	// ScopeBuildRequest builds only the requested targets; edges to other targets are ignored.
	ScopeBuildRequest
)

// BuildTarget is one requested target, optionally with its own parameters.
type BuildTarget struct {
	Name       string
	Parameters *BuildParameters
}

// BuildRequest is everything a caller specifies for one build.
type BuildRequest struct {
	Targets    []BuildTarget
	Parameters BuildParameters
	Scope      DependencyScope
	Command    BuildCommand
	// Files restricts generatePreprocessedFile to these sources.
	Files []string
	// SchemeCommand is the scheme the build was started from, empty for command-line builds.
	SchemeCommand string

	ContinueBuildingAfterErrors bool
	UseParallelTargets          bool
	UseImplicitDependencies     bool
	UseDryRun                   bool
	// Parallelism caps concurrently running tasks; zero selects the number of CPUs.
	Parallelism int
}

// TargetNames returns the requested target names in order.
func (r *BuildRequest) TargetNames() []string {
	names := make([]string, len(r.Targets))
	for i, t := range r.Targets {
		names[i] = t.Name
	}
	return names
}
