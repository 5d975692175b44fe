// Package parser decodes plugin manifests from YAML and TOML.
//
// Both formats share the same keys: name, version, author, description,
// license, dependencies and optional_dependencies. Versions and constraints
// are parsed while decoding, so a malformed constraint is a ConfigError.
package parser

import (
	"path"
	"strings"

	"github.com/reglet-dev/reglet-lua/domain/ports"
)

// ForFile returns the parser matching a manifest file name by extension.
// It returns nil for unknown extensions.
func ForFile(name string) ports.ManifestParser {
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		return NewYamlManifestParser()
	case ".toml":
		return NewTomlManifestParser()
	default:
		return nil
	}
}
