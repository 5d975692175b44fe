package ports

import "github.com/reglet-dev/reglet-lua/domain/entities"

// ManifestValidator checks a decoded manifest before any interpreter is created.
type ManifestValidator interface {
	// Validate returns a ConfigError naming the first invalid field.
	Validate(manifest *entities.PluginManifest) error
}
