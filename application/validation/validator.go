// Package validation checks plugin manifests with go-playground/validator.
package validation

import (
	stdErrors "errors"
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/domain/ports"
)

var pluginNamePattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]{0,63}$`)

// ValidPluginName reports whether name can identify a plugin.
func ValidPluginName(name string) bool {
	return pluginNamePattern.MatchString(name)
}

// ManifestValidator implements ports.ManifestValidator using struct tags.
type ManifestValidator struct {
	validate *validator.Validate
}

// NewManifestValidator creates a validator with the plugin_name rule registered.
// Field names in errors use the manifest keys rather than Go field names.
func NewManifestValidator() ports.ManifestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	// Registration only fails for an empty tag or a nil function.
	_ = v.RegisterValidation("plugin_name", func(fl validator.FieldLevel) bool {
		return ValidPluginName(fl.Field().String())
	})
	return &ManifestValidator{validate: v}
}

// Validate checks required fields, the plugin name format and dependency names.
func (v *ManifestValidator) Validate(manifest *entities.PluginManifest) error {
	if manifest == nil {
		return &errors.ConfigError{Err: fmt.Errorf("manifest is missing")}
	}

	if err := v.validate.Struct(manifest); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &errors.ConfigError{
				Plugin: manifest.Name,
				Field:  fe.Field(),
				Err:    fmt.Errorf("failed on the '%s' rule", fe.Tag()),
			}
		}
		return &errors.ConfigError{Plugin: manifest.Name, Err: err}
	}

	for _, field := range []struct {
		key   string
		names []string
	}{
		{"dependencies", manifest.DependencyNames()},
		{"optional_dependencies", manifest.OptionalDependencyNames()},
	} {
		for _, dep := range field.names {
			if !ValidPluginName(dep) {
				return &errors.ConfigError{Plugin: manifest.Name, Field: field.key, Err: fmt.Errorf("invalid plugin name %q", dep)}
			}
			if dep == manifest.Name {
				return &errors.ConfigError{Plugin: manifest.Name, Field: field.key, Err: fmt.Errorf("plugin cannot depend on itself")}
			}
		}
	}

	for _, dep := range manifest.DependencyNames() {
		if _, both := manifest.OptionalDependencies[dep]; both {
			return &errors.ConfigError{
				Plugin: manifest.Name,
				Field:  "optional_dependencies",
				Err:    fmt.Errorf("%q is already a required dependency", dep),
			}
		}
	}
	return nil
}
