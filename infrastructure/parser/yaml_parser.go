package parser

import (
	"bytes"
	stdErrors "errors"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/domain/ports"
)

// YamlManifestParser implements ManifestParser for YAML (plugin.yaml).
type YamlManifestParser struct{}

// NewYamlManifestParser creates a new YamlManifestParser.
func NewYamlManifestParser() ports.ManifestParser {
	return &YamlManifestParser{}
}

// Parse unmarshals YAML bytes into a PluginManifest struct.
// Unknown keys are rejected so that a misspelled dependency table is not
// silently ignored.
func (p *YamlManifestParser) Parse(data []byte) (*entities.PluginManifest, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var manifest entities.PluginManifest
	if err := dec.Decode(&manifest); err != nil {
		if stdErrors.Is(err, io.EOF) {
			return nil, &errors.ConfigError{Err: stdErrors.New("manifest is empty")}
		}
		return nil, &errors.ConfigError{Err: err}
	}
	return &manifest, nil
}
