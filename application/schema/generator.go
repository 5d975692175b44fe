// Package schema generates JSON Schemas for plugin manifests.
package schema

import (
	"encoding/json"
	"fmt"
	"reflect"

	"github.com/invopop/jsonschema"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
)

var (
	versionType    = reflect.TypeOf(constraint.Version{})
	constraintType = reflect.TypeOf(constraint.Constraint{})
)

// textTypes renders the version and constraint types as the strings they decode from.
func textTypes(t reflect.Type) *jsonschema.Schema {
	switch t {
	case versionType:
		return &jsonschema.Schema{
			Type:        "string",
			Description: "Semantic version (MAJOR.MINOR.PATCH)",
			Pattern:     `^v?\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`,
		}
	case constraintType:
		return &jsonschema.Schema{
			Type:        "string",
			Description: "Version constraint such as ^1.2.0, ~0.3, >=1.0.0 <2.0.0 or *",
		}
	}
	return nil
}

// GenerateSchema creates a JSON schema from a Go struct.
// It uses the `invopop/jsonschema` library to reflect on the struct
// and generate a standard JSON Schema (Draft 2020-12).
func GenerateSchema(v any) ([]byte, error) {
	reflector := jsonschema.Reflector{
		ExpandedStruct: true, // Expand struct definitions inline
		Mapper:         textTypes,
	}
	schema := reflector.Reflect(v)

	jsonBytes, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema: %w", err)
	}

	return jsonBytes, nil
}

// ManifestSchema returns the JSON Schema of a plugin manifest.
func ManifestSchema() ([]byte, error) {
	return GenerateSchema(&entities.PluginManifest{})
}
