package config

// Workfile represents the structure of the bake.work.yaml file.
type Workfile struct {
	Version  string            `yaml:"version"`
	Root     string            `yaml:"root"`
	Settings map[string]string `yaml:"settings"`
	Projects []string          `yaml:"projects"`
}

// Projectfile represents the structure of a bake.yaml file.
type Projectfile struct {
	Version  string                `yaml:"version"`
	Project  string                `yaml:"project"`
	Settings map[string]string     `yaml:"settings"`
	Schemes  map[string]*SchemeDTO `yaml:"schemes"`
	Targets  []*TargetDTO          `yaml:"targets"`
}

// SchemeDTO represents a scheme definition.
type SchemeDTO struct {
	Targets []string `yaml:"targets"`
	// ParallelizeTargets defaults to true.
	ParallelizeTargets *bool `yaml:"parallelizeTargets"`
}

// TargetDTO represents a target definition.
type TargetDTO struct {
	Name           string            `yaml:"name"`
	Kind           string            `yaml:"kind"`
	Dependencies   []string          `yaml:"dependencies"`
	Settings       map[string]string `yaml:"settings"`
	DynamicVariant bool              `yaml:"dynamicVariant"`
	ResourceBundle string            `yaml:"resourceBundle"`
	Phases         []*PhaseDTO       `yaml:"phases"`
}

// PhaseDTO represents a build phase definition.
type PhaseDTO struct {
	Kind           string   `yaml:"kind"`
	Name           string   `yaml:"name"`
	Files          []string `yaml:"files"`
	Destination    string   `yaml:"destination"`
	Script         string   `yaml:"script"`
	Inputs         []string `yaml:"inputs"`
	Outputs        []string `yaml:"outputs"`
	DependencyInfo string   `yaml:"dependencyInfo"`
}
