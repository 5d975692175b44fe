package dependency

import (
	stdErrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

func manifest(name string, deps, optional map[string]string) *entities.PluginManifest {
	v := constraint.MustParseVersion("1.0.0")
	m := &entities.PluginManifest{Name: name, Version: &v}
	if len(deps) > 0 {
		m.Dependencies = make(map[string]constraint.Constraint)
		for k, c := range deps {
			m.Dependencies[k] = constraint.MustParse(c)
		}
	}
	if len(optional) > 0 {
		m.OptionalDependencies = make(map[string]constraint.Constraint)
		for k, c := range optional {
			m.OptionalDependencies[k] = constraint.MustParse(c)
		}
	}
	return m
}

func versions(kv ...string) map[string]constraint.Version {
	out := make(map[string]constraint.Version)
	for i := 0; i+1 < len(kv); i += 2 {
		out[kv[i]] = constraint.MustParseVersion(kv[i+1])
	}
	return out
}

func TestResolver_Validate(t *testing.T) {
	r := NewResolver()

	tests := []struct {
		name     string
		manifest *entities.PluginManifest
		loaded   map[string]constraint.Version
		want     error
		dep      string
	}{
		{name: "no dependencies", manifest: manifest("p", nil, nil), loaded: nil},
		{name: "caret lower bound", manifest: manifest("p", map[string]string{"a": "^1.0.0"}, nil), loaded: versions("a", "1.0.0")},
		{name: "caret inside", manifest: manifest("p", map[string]string{"a": "^1.0.0"}, nil), loaded: versions("a", "1.9.3")},
		{name: "caret upper bound", manifest: manifest("p", map[string]string{"a": "^1.0.0"}, nil), loaded: versions("a", "2.0.0"),
			want: errors.ErrVersionMismatch, dep: "a"},
		{name: "caret below", manifest: manifest("p", map[string]string{"a": "^1.0.0"}, nil), loaded: versions("a", "0.9.0"),
			want: errors.ErrVersionMismatch, dep: "a"},
		{name: "missing required", manifest: manifest("p", map[string]string{"a": "^1.0.0"}, nil), loaded: versions("b", "1.0.0"),
			want: errors.ErrMissingRequired, dep: "a"},
		{name: "optional absent", manifest: manifest("p", nil, map[string]string{"a": "^1.0.0"}), loaded: nil},
		{name: "optional mismatch", manifest: manifest("p", nil, map[string]string{"a": "~1.2"}), loaded: versions("a", "1.3.0"),
			want: errors.ErrVersionMismatch, dep: "a"},
		{name: "sorted first failure", manifest: manifest("p", map[string]string{"z": "*", "b": "^1", "c": "^1"}, nil), loaded: versions("z", "1.0.0"),
			want: errors.ErrMissingRequired, dep: "b"},
		{name: "required before optional", manifest: manifest("p", map[string]string{"z": "^1"}, map[string]string{"a": "^1"}), loaded: versions("a", "3.0.0"),
			want: errors.ErrMissingRequired, dep: "z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := r.Validate(tt.manifest, tt.loaded)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			require.ErrorIs(t, err, tt.want)
			var depErr *errors.DependencyError
			require.True(t, stdErrors.As(err, &depErr))
			assert.Equal(t, "p", depErr.Plugin)
			assert.Equal(t, tt.dep, depErr.Dependency)
		})
	}
}

func TestResolver_ValidateReportsVersions(t *testing.T) {
	err := NewResolver().Validate(manifest("p", map[string]string{"a": "^1.0.0"}, nil), versions("a", "2.1.0"))

	var depErr *errors.DependencyError
	require.True(t, stdErrors.As(err, &depErr))
	assert.Equal(t, "^1.0.0", depErr.Required)
	assert.Equal(t, "2.1.0", depErr.Found)
	assert.Equal(t, `plugin "p" requires "a" ^1.0.0, found 2.1.0`, err.Error())
}
