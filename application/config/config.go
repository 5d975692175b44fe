// Package config loads the runtime configuration shared by the manager and
// its VMs, and builds the logger it asks for.
package config

import (
	"bytes"
	stdErrors "errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// Format is a configuration file syntax.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatFor returns the format matching a file name by extension.
func FormatFor(name string) (Format, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".toml":
		return FormatTOML, nil
	default:
		return "", &errors.ConfigError{Err: fmt.Errorf("unsupported config file %q", name)}
	}
}

// Load decodes data over entities.DefaultConfig, so keys left out keep their
// defaults, and validates the result.
func Load(data []byte, format Format) (entities.Config, error) {
	cfg := entities.DefaultConfig()

	var err error
	switch format {
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&cfg)
		if stdErrors.Is(err, io.EOF) {
			err = nil
		}
	case FormatTOML:
		err = toml.NewDecoder(bytes.NewReader(data)).DisallowUnknownFields().Decode(&cfg)
	default:
		return cfg, &errors.ConfigError{Err: fmt.Errorf("unsupported config format %q", format)}
	}
	if err != nil {
		return cfg, &errors.ConfigError{Err: err}
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile reads and decodes a configuration file.
func LoadFile(path string) (entities.Config, error) {
	format, err := FormatFor(path)
	if err != nil {
		return entities.DefaultConfig(), err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return entities.DefaultConfig(), fmt.Errorf("failed to read config: %w", err)
	}
	return Load(data, format)
}

var validate = newValidator()

// newValidator reports fields by their file key, such as call_stack_size.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})
	return v
}

// Validate checks the limits of cfg.
func Validate(cfg entities.Config) error {
	if err := validate.Struct(cfg); err != nil {
		var fieldErrs validator.ValidationErrors
		if stdErrors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
			fe := fieldErrs[0]
			return &errors.ConfigError{
				Field: fe.Field(),
				Err:   fmt.Errorf("value %v failed on the '%s' rule", fe.Value(), fe.Tag()),
			}
		}
		return &errors.ConfigError{Err: err}
	}
	return nil
}

// ParseLevel maps a level name to a slog level. An empty name is info.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, &errors.ConfigError{Field: "log_level", Err: fmt.Errorf("unknown level %q", level)}
	}
}

// NewLogger returns a text logger writing to w at cfg's level.
func NewLogger(w io.Writer, cfg entities.Config) (*slog.Logger, error) {
	level, err := ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})), nil
}
