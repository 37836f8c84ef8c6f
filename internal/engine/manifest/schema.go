package manifest

// Document is the top-level structure of a manifest file.
type Document struct {
	Version                string            `yaml:"version"`
	Signature              string            `yaml:"signature"`
	TargetsBuildInParallel bool              `yaml:"targetsBuildInParallel"`
	ModuleSessionFilePath  string            `yaml:"moduleSessionFilePath,omitempty"`
	CopiedPathMap          map[string]string `yaml:"copiedPathMap,omitempty"`
	GeneratedFilesPathMap  map[string]string `yaml:"generatedFilesPathMap,omitempty"`
	Warnings               []string          `yaml:"warnings,omitempty"`
	Captured               *CapturedDTO      `yaml:"capturedBuildInfo,omitempty"`
	Targets                []TargetDTO       `yaml:"targets"`
	Tasks                  []TaskDTO         `yaml:"tasks"`
}

// TargetDTO is a configured target.
type TargetDTO struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Project       string            `yaml:"project,omitempty"`
	Dir           string            `yaml:"dir,omitempty"`
	Kind          string            `yaml:"kind"`
	ProductName   string            `yaml:"productName,omitempty"`
	Configuration string            `yaml:"configuration,omitempty"`
	Action        string            `yaml:"action,omitempty"`
	Platform      string            `yaml:"platform,omitempty"`
	ArenaRoot     string            `yaml:"arenaRoot,omitempty"`
	Overrides     map[string]string `yaml:"overrides,omitempty"`
	Dependencies  []DependencyDTO   `yaml:"dependencies,omitempty"`
}

// DependencyDTO is a resolved dependency edge.
type DependencyDTO struct {
	Target       string   `yaml:"target"`
	Reason       string   `yaml:"reason"`
	Links        bool     `yaml:"links,omitempty"`
	Filename     string   `yaml:"filename,omitempty"`
	BuildPhase   string   `yaml:"buildPhase,omitempty"`
	Setting      string   `yaml:"setting,omitempty"`
	Options      []string `yaml:"options,omitempty"`
	Intermediate string   `yaml:"intermediate,omitempty"`
}

// TaskDTO is one task.
type TaskDTO struct {
	Rule                []string          `yaml:"rule,flow"`
	Target              string            `yaml:"target,omitempty"`
	CommandLine         []string          `yaml:"commandLine,omitempty"`
	Environment         map[string]string `yaml:"environment,omitempty"`
	WorkingDirectory    string            `yaml:"workingDirectory,omitempty"`
	Inputs              []string          `yaml:"inputs,omitempty"`
	Outputs             []string          `yaml:"outputs,omitempty"`
	MustPrecede         []string          `yaml:"mustPrecede,omitempty"`
	Action              *ActionDTO        `yaml:"action,omitempty"`
	AdditionalOutput    []string          `yaml:"additionalOutput,omitempty"`
	PreparesForIndexing bool              `yaml:"preparesForIndexing,omitempty"`
	TargetDependencies  bool              `yaml:"targetDependencies,omitempty"`
}

// ActionDTO is an in-process action encoded by kind and parameters.
type ActionDTO struct {
	Kind   string            `yaml:"kind"`
	Params map[string]string `yaml:"params,omitempty"`
}

// CapturedDTO is the captured build info.
type CapturedDTO struct {
	Signature string              `yaml:"signature"`
	Targets   []CapturedTargetDTO `yaml:"targets"`
}

// CapturedTargetDTO is one target of the captured build info.
type CapturedTargetDTO struct {
	Name         string            `yaml:"name"`
	Project      string            `yaml:"project,omitempty"`
	Kind         string            `yaml:"kind"`
	Dependencies []string          `yaml:"dependencies,omitempty"`
	Settings     map[string]string `yaml:"settings,omitempty"`
}
