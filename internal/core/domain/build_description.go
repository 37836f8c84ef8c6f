package domain

// CapturedTargetInfo is the snapshot of one configured target in the captured build info.
type CapturedTargetInfo struct {
	Name         string            `json:"name"`
	Project      string            `json:"project,omitempty"`
	Kind         string            `json:"kind"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Settings     map[string]string `json:"settings,omitempty"`
}

// CapturedBuildInfo is gathered only when a capture directory is configured.
type CapturedBuildInfo struct {
	Signature string               `json:"signature"`
	Targets   []CapturedTargetInfo `json:"targets"`
}

// BuildDescription is the finalized, deterministic task graph for one build request.
type BuildDescription struct {
	// Signature identifies the request and workspace state the description was built from.
	Signature string
	Tasks     []*Task
	Targets   []*ConfiguredTarget
	// CopiedPathMap maps destinations of copy tasks to their sources.
	CopiedPathMap map[string]string
	// GeneratedFilesPathMap maps files generated by script phases to the phase that writes them.
	GeneratedFilesPathMap map[string]string
	CapturedBuildInfo     *CapturedBuildInfo
	// ModuleSessionFilePath is set only when module-enabled compilation occurred.
	ModuleSessionFilePath  string
	TargetsBuildInParallel bool
	Warnings               []string

	graph *Graph
}

// NewBuildDescription analyzes the tasks of a description.
func NewBuildDescription(tasks []*Task) (*BuildDescription, error) {
	g, err := NewGraph(tasks)
	if err != nil {
		return nil, err
	}
	return &BuildDescription{
		Tasks:                  tasks,
		CopiedPathMap:          map[string]string{},
		GeneratedFilesPathMap:  map[string]string{},
		TargetsBuildInParallel: true,
		graph:                  g,
	}, nil
}

// Graph returns the analyzed dependency graph.
func (d *BuildDescription) Graph() *Graph {
	return d.graph
}
