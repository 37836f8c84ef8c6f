package domain

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// BuildAction is the action a build performs.
type BuildAction string

const (
	ActionBuild          BuildAction = "build"
	ActionInstall        BuildAction = "install"
	ActionInstallHeaders BuildAction = "installHeaders"
	ActionIndexBuild     BuildAction = "indexBuild"
	// ActionGeneratePreprocessedFile preprocesses selected sources instead of compiling them.
	ActionGeneratePreprocessedFile BuildAction = "generatePreprocessedFile"
)

// BuildParameters are the parameters a target is configured with.
type BuildParameters struct {
	Configuration string
	Action        BuildAction
	Platform      string
	Overrides     map[string]string
	// ArenaRoot is the derived data root that build products and intermediates are written to.
	ArenaRoot string
}

// Key returns a stable string identifying the parameter set.
func (p BuildParameters) Key() string {
	var b strings.Builder
	b.WriteString(p.Configuration)
	b.WriteByte('|')
	b.WriteString(p.Platform)
	for _, k := range slices.Sorted(maps.Keys(p.Overrides)) {
		b.WriteByte('|')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(p.Overrides[k])
	}
	return b.String()
}

// WithOverride returns a copy of p with one more override setting.
func (p BuildParameters) WithOverride(name, value string) BuildParameters {
	overrides := make(map[string]string, len(p.Overrides)+1)
	maps.Copy(overrides, p.Overrides)
	overrides[name] = value
	p.Overrides = overrides
	return p
}

// BuildDynamicallySetting is the override that selects the dynamic variant of a library.
const BuildDynamicallySetting = "PACKAGE_BUILD_DYNAMICALLY"

// ConfiguredTarget is a target bound to a concrete parameter set.
type ConfiguredTarget struct {
	Target     *Target
	Parameters BuildParameters
	// Dependencies are resolved edges in declaration order.
	Dependencies []ResolvedDependency
}

// NewConfiguredTarget binds a target to parameters.
func NewConfiguredTarget(target *Target, params BuildParameters) *ConfiguredTarget {
	return &ConfiguredTarget{Target: target, Parameters: params}
}

// ID is the identity of the configured target: the target and its effective parameters.
func (c *ConfiguredTarget) ID() string {
	return c.Target.Name + "@" + c.Parameters.Key()
}

// ShortID returns a short stable hash of the identity.
func (c *ConfiguredTarget) ShortID() string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(c.ID()))[:12]
}

// IsDynamicVariant reports whether this is the dynamic build of a library.
func (c *ConfiguredTarget) IsDynamicVariant() bool {
	return SettingEnabled(c.Parameters.Overrides[BuildDynamicallySetting])
}

// Name returns the display name; dynamic variants carry a "-dynamic" suffix.
func (c *ConfiguredTarget) Name() string {
	if c.IsDynamicVariant() {
		return c.Target.Name + "-dynamic"
	}
	return c.Target.Name
}

// Kind is the effective product kind after variant selection.
func (c *ConfiguredTarget) Kind() ProductKind {
	if c.IsDynamicVariant() {
		return ProductKindDynamicLibrary
	}
	return c.Target.Kind
}

// ProductName returns the effective product name.
func (c *ConfiguredTarget) ProductName() string {
	return c.Target.ProductName()
}

// Setting resolves a build setting: overrides win over target settings.
func (c *ConfiguredTarget) Setting(name string) string {
	if v, ok := c.Parameters.Overrides[name]; ok {
		return v
	}
	return c.Target.Settings[name]
}

// DependsOn reports whether there is a direct resolved edge to other.
func (c *ConfiguredTarget) DependsOn(other *ConfiguredTarget) (ResolvedDependency, bool) {
	for _, d := range c.Dependencies {
		if d.Target == other {
			return d, true
		}
	}
	return ResolvedDependency{}, false
}

func (c *ConfiguredTarget) String() string {
	return c.Name()
}
