package entities

import (
	"sort"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
)

// PluginManifest describes a plugin's identity and its dependencies.
// Constraint and version fields are parsed while the manifest is decoded, so a
// malformed constraint never reaches dependency resolution.
type PluginManifest struct {
	Dependencies         map[string]constraint.Constraint `json:"dependencies,omitempty" yaml:"dependencies,omitempty" toml:"dependencies,omitempty"`
	OptionalDependencies map[string]constraint.Constraint `json:"optional_dependencies,omitempty" yaml:"optional_dependencies,omitempty" toml:"optional_dependencies,omitempty"`
	Name                 string                           `json:"name" yaml:"name" toml:"name" validate:"required,plugin_name"`
	Author               string                           `json:"author" yaml:"author" toml:"author" validate:"required"`
	Description          string                           `json:"description" yaml:"description" toml:"description" validate:"required"`
	License              string                           `json:"license,omitempty" yaml:"license,omitempty" toml:"license,omitempty"`
	Version              *constraint.Version              `json:"version" yaml:"version" toml:"version" validate:"required"`
}

// PluginVersion returns the declared version, or the zero version when unset.
func (m *PluginManifest) PluginVersion() constraint.Version {
	if m.Version == nil {
		return constraint.Version{}
	}
	return *m.Version
}

// DependencyNames returns the sorted names of required dependencies.
func (m *PluginManifest) DependencyNames() []string {
	return sortedKeys(m.Dependencies)
}

// OptionalDependencyNames returns the sorted names of optional dependencies.
func (m *PluginManifest) OptionalDependencyNames() []string {
	return sortedKeys(m.OptionalDependencies)
}

// DependsOn reports whether name is declared as a required or optional dependency.
func (m *PluginManifest) DependsOn(name string) (optional bool, ok bool) {
	if _, found := m.Dependencies[name]; found {
		return false, true
	}
	if _, found := m.OptionalDependencies[name]; found {
		return true, true
	}
	return false, false
}

// Clone returns a deep copy of m.
func (m *PluginManifest) Clone() *PluginManifest {
	if m == nil {
		return nil
	}
	c := *m
	if m.Version != nil {
		v := *m.Version
		c.Version = &v
	}
	c.Dependencies = cloneConstraints(m.Dependencies)
	c.OptionalDependencies = cloneConstraints(m.OptionalDependencies)
	return &c
}

func cloneConstraints(deps map[string]constraint.Constraint) map[string]constraint.Constraint {
	if deps == nil {
		return nil
	}
	out := make(map[string]constraint.Constraint, len(deps))
	for name, c := range deps {
		out[name] = c
	}
	return out
}

func sortedKeys(deps map[string]constraint.Constraint) []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Bundle is what the host hands the manager to load one plugin.
type Bundle struct {
	Manifest *PluginManifest
	// Source is the Lua source of the plugin entry point.
	Source string
	// ChunkName names the source in diagnostics; defaults to "main.lua".
	ChunkName string
	// Dir, when set, is prepended to package.path so require resolves plugin modules.
	Dir string
}
