package host

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/reglet-lua/application/validation"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/domain/ports"
	"github.com/reglet-dev/reglet-lua/infrastructure/parser"
)

// loaderConfig holds configuration for the Loader.
type loaderConfig struct {
	parser    ports.ManifestParser
	validator ports.ManifestValidator
}

// defaultLoaderConfig leaves parser unset: LoadFile then picks one from the
// file name and LoadManifest reads YAML.
func defaultLoaderConfig() loaderConfig {
	return loaderConfig{
		validator: validation.NewManifestValidator(),
	}
}

// Loader turns raw manifest documents into validated manifests, so that
// malformed input is rejected before any VM is created.
type Loader struct {
	config loaderConfig
}

// LoaderOption configures the Loader.
type LoaderOption func(*loaderConfig)

// WithParser sets a custom manifest parser.
func WithParser(p ports.ManifestParser) LoaderOption {
	return func(c *loaderConfig) {
		if p != nil {
			c.parser = p
		}
	}
}

// WithManifestValidator sets a custom manifest validator.
func WithManifestValidator(v ports.ManifestValidator) LoaderOption {
	return func(c *loaderConfig) {
		if v != nil {
			c.validator = v
		}
	}
}

// NewLoader creates a new Loader with defaults: the parser matching the
// manifest file name and the standard manifest rules.
func NewLoader(opts ...LoaderOption) *Loader {
	cfg := defaultLoaderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loader{config: cfg}
}

// LoadManifest parses and validates a plugin manifest. Every failure is a
// *errors.ConfigError.
func (l *Loader) LoadManifest(raw []byte) (*entities.PluginManifest, error) {
	p := l.config.parser
	if p == nil {
		p = parser.NewYamlManifestParser()
	}
	return l.load(p, raw)
}

// LoadFile is LoadManifest for a manifest read from the named file; unless a
// parser was configured the format follows the file extension.
func (l *Loader) LoadFile(name string, raw []byte) (*entities.PluginManifest, error) {
	p := l.config.parser
	if p == nil {
		p = parser.ForFile(name)
	}
	if p == nil {
		return nil, &errors.ConfigError{Err: fmt.Errorf("unsupported manifest format %q", name)}
	}
	return l.load(p, raw)
}

func (l *Loader) load(p ports.ManifestParser, raw []byte) (*entities.PluginManifest, error) {
	manifest, err := p.Parse(raw)
	if err != nil {
		return nil, asConfigError(err, "")
	}
	if err := l.config.validator.Validate(manifest); err != nil {
		return nil, asConfigError(err, manifest.Name)
	}
	return manifest, nil
}

func asConfigError(err error, plugin string) error {
	var ce *errors.ConfigError
	if stdErrors.As(err, &ce) {
		if ce.Plugin == "" {
			ce.Plugin = plugin
		}
		return ce
	}
	return &errors.ConfigError{Err: err, Plugin: plugin}
}
