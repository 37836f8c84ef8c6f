package domain

import (
	"path/filepath"
	"strings"

	"go.trai.ch/zerr"
)

// ProductKind is the kind of product a target builds.
type ProductKind string

const (
	// ProductKindApplication builds an application bundle.
	ProductKindApplication ProductKind = "application"
	// ProductKindTool builds a command-line tool.
	ProductKindTool ProductKind = "tool"
	// ProductKindFramework builds a dynamic framework.
	ProductKindFramework ProductKind = "framework"
	// ProductKindDynamicLibrary builds a dynamic library.
	ProductKindDynamicLibrary ProductKind = "dynamicLibrary"
	// ProductKindStaticLibrary builds a static archive.
	ProductKindStaticLibrary ProductKind = "staticLibrary"
	// ProductKindBundle builds a loadable bundle.
	ProductKindBundle ProductKind = "bundle"
	// ProductKindResourceBundle builds a bundle holding only resources.
	ProductKindResourceBundle ProductKind = "resourceBundle"
	// ProductKindAggregate builds nothing on its own.
	ProductKindAggregate ProductKind = "aggregate"
	// ProductKindPackageProduct groups package targets for linking.
	ProductKindPackageProduct ProductKind = "packageProduct"
	// ProductKindPackageTarget is a package module built as an object archive by default.
	ProductKindPackageTarget ProductKind = "packageTarget"
)

// ParseProductKind validates a product kind string.
func ParseProductKind(s string) (ProductKind, bool) {
	switch k := ProductKind(s); k {
	case ProductKindApplication, ProductKindTool, ProductKindFramework, ProductKindDynamicLibrary,
		ProductKindStaticLibrary, ProductKindBundle, ProductKindResourceBundle, ProductKindAggregate,
		ProductKindPackageProduct, ProductKindPackageTarget:
		return k, true
	case "":
		return ProductKindAggregate, true
	default:
		return "", false
	}
}

// IsStatic reports whether products of this kind are archives copied into whatever links them.
func (k ProductKind) IsStatic() bool {
	switch k {
	case ProductKindStaticLibrary, ProductKindPackageTarget, ProductKindPackageProduct:
		return true
	default:
		return false
	}
}

// IsLinkedBinary reports whether products of this kind are the result of a final link.
func (k ProductKind) IsLinkedBinary() bool {
	switch k {
	case ProductKindApplication, ProductKindTool, ProductKindFramework, ProductKindDynamicLibrary, ProductKindBundle:
		return true
	default:
		return false
	}
}

// IsPackage reports whether the kind belongs to a package.
func (k ProductKind) IsPackage() bool {
	return k == ProductKindPackageProduct || k == ProductKindPackageTarget
}

// PhaseKind is the kind of a build phase.
type PhaseKind string

const (
	PhaseHeaders   PhaseKind = "headers"
	PhaseSources   PhaseKind = "sources"
	PhaseResources PhaseKind = "resources"
	PhaseLink      PhaseKind = "link"
	PhaseCopyFiles PhaseKind = "copyFiles"
	PhaseScript    PhaseKind = "script"
)

// ParsePhaseKind validates a build phase kind string.
func ParsePhaseKind(s string) (PhaseKind, bool) {
	switch k := PhaseKind(s); k {
	case PhaseHeaders, PhaseSources, PhaseResources, PhaseLink, PhaseCopyFiles, PhaseScript:
		return k, true
	default:
		return "", false
	}
}

// DefaultName returns the display name used for a phase without an explicit name.
func (k PhaseKind) DefaultName() string {
	switch k {
	case PhaseHeaders:
		return "Headers"
	case PhaseSources:
		return "Compile Sources"
	case PhaseResources:
		return "Copy Bundle Resources"
	case PhaseLink:
		return "Link Binary"
	case PhaseCopyFiles:
		return "Copy Files"
	default:
		return "Run Script"
	}
}

// BuildPhase is one ordered step of a target's work.
type BuildPhase struct {
	Kind PhaseKind
	Name string
	// Files are paths relative to the project directory, or product references such as "Fwk.framework".
	Files []string
	// Destination is the subfolder of the product that copyFiles phases write to.
	Destination string
	// Script, Inputs, Outputs and DependencyInfo apply to script phases.
	Script         string
	Inputs         []string
	Outputs        []string
	DependencyInfo string
}

// DisplayName returns the phase name, falling back to the kind's default.
func (p BuildPhase) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Kind.DefaultName()
}

// Target is a nominal target as declared in a project.
type Target struct {
	Name    string
	Project string
	// Dir is the absolute directory of the declaring project.
	Dir          string
	Kind         ProductKind
	Dependencies []string
	Settings     map[string]string
	Phases       []BuildPhase
	// DynamicVariant marks a library that can also be built as a dynamic library.
	DynamicVariant bool
	// ResourceBundle names a companion target carrying the library's resources.
	ResourceBundle string
}

// ProductName returns the PRODUCT_NAME setting, or the target name.
func (t *Target) ProductName() string {
	if name := t.Settings["PRODUCT_NAME"]; name != "" {
		return name
	}
	return t.Name
}

// Setting returns a build setting of the target.
func (t *Target) Setting(name string) string {
	return t.Settings[name]
}

// SettingEnabled reports whether a boolean build setting is YES.
func SettingEnabled(value string) bool {
	switch strings.ToUpper(strings.TrimSpace(value)) {
	case "YES", "TRUE", "1":
		return true
	default:
		return false
	}
}

// ProductFileName returns the file name of the product for the given kind.
func ProductFileName(name string, kind ProductKind) string {
	switch kind {
	case ProductKindApplication:
		return name + ".app"
	case ProductKindFramework:
		return name + ".framework"
	case ProductKindDynamicLibrary:
		return "lib" + name + ".dylib"
	case ProductKindStaticLibrary, ProductKindPackageTarget, ProductKindPackageProduct:
		return "lib" + name + ".a"
	case ProductKindBundle, ProductKindResourceBundle:
		return name + ".bundle"
	case ProductKindTool:
		return name
	default:
		return ""
	}
}

// BinaryPath returns the path of the linked binary inside a product located at productPath.
func BinaryPath(productPath, name string, kind ProductKind) string {
	switch kind {
	case ProductKindApplication, ProductKindFramework, ProductKindBundle:
		return filepath.Join(productPath, name)
	default:
		return productPath
	}
}

// Scheme is a named, ordered selection of targets.
type Scheme struct {
	Name    string
	Targets []string
	// ParallelizeTargets is false when the scheme uses manual build order.
	ParallelizeTargets bool
}

// Workspace is the loaded project model.
type Workspace struct {
	Root     string
	Settings map[string]string
	Targets  []*Target
	Schemes  map[string]*Scheme
	// ConfigPaths lists the files the workspace was loaded from.
	ConfigPaths []string
	// Environment holds BAKE_* overrides from the .env file of the root.
	// Variables of the process environment take precedence.
	Environment map[string]string

	byName map[string]*Target
}

// NewWorkspace indexes targets by name.
func NewWorkspace(root string, targets []*Target) (*Workspace, error) {
	ws := &Workspace{
		Root:        root,
		Targets:     targets,
		Settings:    map[string]string{},
		Schemes:     map[string]*Scheme{},
		Environment: map[string]string{},
		byName:      make(map[string]*Target, len(targets)),
	}
	for _, t := range targets {
		if _, exists := ws.byName[t.Name]; exists {
			return nil, zerr.With(zerr.Wrap(ErrDuplicateTargetName, t.Name), "target", t.Name)
		}
		ws.byName[t.Name] = t
	}
	return ws, nil
}

// Target looks up a target by name.
func (w *Workspace) Target(name string) (*Target, bool) {
	t, ok := w.byName[name]
	return t, ok
}

// TargetByProduct finds the target whose product file name equals fileName.
func (w *Workspace) TargetByProduct(fileName string) (*Target, bool) {
	for _, t := range w.Targets {
		if pf := ProductFileName(t.ProductName(), t.Kind); pf != "" && pf == fileName {
			return t, true
		}
	}
	return nil, false
}
