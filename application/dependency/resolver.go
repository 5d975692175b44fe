package dependency

import (
	"log/slog"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// Resolver checks manifests against the versions of loaded plugins.
type Resolver struct {
	logger *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger used to report skipped optional dependencies.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewResolver creates a Resolver.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Validate reports the first unsatisfied dependency of manifest, checking
// required dependencies before optional ones, each in name order.
//
// A required dependency must be loaded at a version its constraint admits.
// An optional dependency may be absent, but when present its version must match.
func (r *Resolver) Validate(manifest *entities.PluginManifest, loaded map[string]constraint.Version) error {
	for _, name := range manifest.DependencyNames() {
		required := manifest.Dependencies[name]
		version, ok := loaded[name]
		if !ok {
			return &errors.DependencyError{
				Kind:       errors.MissingRequired,
				Plugin:     manifest.Name,
				Dependency: name,
				Required:   required.String(),
			}
		}
		if !required.Matches(version) {
			return mismatch(manifest.Name, name, required, version)
		}
	}

	for _, name := range manifest.OptionalDependencyNames() {
		required := manifest.OptionalDependencies[name]
		version, ok := loaded[name]
		if !ok {
			r.logger.Debug("optional dependency not loaded", "plugin", manifest.Name, "dependency", name)
			continue
		}
		if !required.Matches(version) {
			return mismatch(manifest.Name, name, required, version)
		}
	}
	return nil
}

func mismatch(plugin, dep string, required constraint.Constraint, found constraint.Version) error {
	return &errors.DependencyError{
		Kind:       errors.VersionMismatch,
		Plugin:     plugin,
		Dependency: dep,
		Required:   required.String(),
		Found:      found.String(),
	}
}
