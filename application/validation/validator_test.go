package validation

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

func validManifest() *entities.PluginManifest {
	v := constraint.MustParseVersion("1.2.0")
	return &entities.PluginManifest{
		Name:        "calc",
		Version:     &v,
		Author:      "Ops Team",
		Description: "Arithmetic helpers",
		Dependencies: map[string]constraint.Constraint{
			"core": constraint.MustParse("^1.0.0"),
		},
	}
}

func TestManifestValidator_Valid(t *testing.T) {
	assert.NoError(t, NewManifestValidator().Validate(validManifest()))
}

func TestManifestValidator_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(m *entities.PluginManifest)
		field  string
	}{
		{name: "missing name", mutate: func(m *entities.PluginManifest) { m.Name = "" }, field: "name"},
		{name: "bad name", mutate: func(m *entities.PluginManifest) { m.Name = "9lives" }, field: "name"},
		{name: "name with dot", mutate: func(m *entities.PluginManifest) { m.Name = "a.b" }, field: "name"},
		{name: "missing version", mutate: func(m *entities.PluginManifest) { m.Version = nil }, field: "version"},
		{name: "missing author", mutate: func(m *entities.PluginManifest) { m.Author = "" }, field: "author"},
		{name: "missing description", mutate: func(m *entities.PluginManifest) { m.Description = "" }, field: "description"},
		{name: "bad dependency name", mutate: func(m *entities.PluginManifest) {
			m.Dependencies["bad name"] = constraint.MustParse("*")
		}, field: "dependencies"},
		{name: "self dependency", mutate: func(m *entities.PluginManifest) {
			m.OptionalDependencies = map[string]constraint.Constraint{"calc": constraint.MustParse("*")}
		}, field: "optional_dependencies"},
		{name: "required and optional", mutate: func(m *entities.PluginManifest) {
			m.OptionalDependencies = map[string]constraint.Constraint{"core": constraint.MustParse("*")}
		}, field: "optional_dependencies"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := validManifest()
			tt.mutate(m)

			err := NewManifestValidator().Validate(m)
			require.Error(t, err)

			var cfgErr *errors.ConfigError
			require.True(t, stdErrors.As(err, &cfgErr))
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestManifestValidator_Nil(t *testing.T) {
	err := NewManifestValidator().Validate(nil)
	var cfgErr *errors.ConfigError
	assert.True(t, stdErrors.As(err, &cfgErr))
}

func TestValidPluginName(t *testing.T) {
	assert.True(t, ValidPluginName("calc"))
	assert.True(t, ValidPluginName("Net_Tools-2"))
	assert.False(t, ValidPluginName(""))
	assert.False(t, ValidPluginName("-lead"))
	assert.False(t, ValidPluginName("has space"))
}
