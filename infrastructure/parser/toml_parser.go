package parser

import (
	"bytes"

	"github.com/pelletier/go-toml/v2"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/domain/ports"
)

// TomlManifestParser implements ManifestParser for TOML (config.toml).
type TomlManifestParser struct{}

// NewTomlManifestParser creates a new TomlManifestParser.
func NewTomlManifestParser() ports.ManifestParser {
	return &TomlManifestParser{}
}

// Parse unmarshals TOML bytes into a PluginManifest struct.
func (p *TomlManifestParser) Parse(data []byte) (*entities.PluginManifest, error) {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()

	var manifest entities.PluginManifest
	if err := dec.Decode(&manifest); err != nil {
		return nil, &errors.ConfigError{Err: err}
	}
	return &manifest, nil
}
