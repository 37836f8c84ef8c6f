package domain

import "strings"

// DependencyReasonKind classifies why one target depends on another.
type DependencyReasonKind uint8

const (
	// ReasonUnknown is used when the origin of an edge could not be determined.
	ReasonUnknown DependencyReasonKind = iota
	// ReasonExplicit is a dependency declared in the project.
	ReasonExplicit
	// ReasonImplicitBuildPhaseLinkage is inferred from a build phase referencing another target's product.
	ReasonImplicitBuildPhaseLinkage
	// ReasonImplicitBuildSettingLinkage is inferred from linker options naming another target's product.
	ReasonImplicitBuildSettingLinkage
	// ReasonTransitive is inherited from a target that was removed from the build.
	ReasonTransitive
)

// DependencyReason carries enough metadata to explain an edge in prose.
type DependencyReason struct {
	Kind DependencyReasonKind
	// Filename and BuildPhase are set for build phase linkage.
	Filename   string
	BuildPhase string
	// Setting and Options are set for build setting linkage.
	Setting string
	Options []string
	// Intermediate is the removed target a transitive edge was inherited through.
	Intermediate string
}

// OptionsString joins the linker options the way they appear in the setting.
func (r DependencyReason) OptionsString() string {
	return strings.Join(r.Options, " ")
}

// ResolvedDependency is an edge of the configured target graph.
type ResolvedDependency struct {
	Target *ConfiguredTarget
	Reason DependencyReason
	// Links is true when the dependent links the dependency's product. Copy and embed references do not link.
	Links bool
}
