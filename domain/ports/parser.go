package ports

import "github.com/reglet-dev/reglet-lua/domain/entities"

// ManifestParser decodes raw manifest bytes into a PluginManifest.
type ManifestParser interface {
	// Parse unmarshals manifest bytes into a PluginManifest struct.
	// Malformed versions and constraints fail here, not at resolution time.
	Parse(data []byte) (*entities.PluginManifest, error)
}
