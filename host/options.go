package host

import (
	"io"
	"log/slog"
	"os"

	"github.com/reglet-dev/reglet-lua/application/dependency"
	"github.com/reglet-dev/reglet-lua/application/validation"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/ports"
)

// managerConfig holds configuration for the Manager.
type managerConfig struct {
	logger    *slog.Logger
	stdout    io.Writer
	validator ports.ManifestValidator
	resolver  *dependency.Resolver
	runtime   entities.Config
}

func defaultManagerConfig() managerConfig {
	return managerConfig{
		logger:    slog.Default(),
		stdout:    os.Stdout,
		validator: validation.NewManifestValidator(),
		runtime:   entities.DefaultConfig(),
	}
}

// Option defines a functional option for configuring the Manager.
type Option func(*managerConfig)

// WithLogger sets the logger for lifecycle events. Each plugin's VM logs through
// a child logger carrying the plugin name.
func WithLogger(logger *slog.Logger) Option {
	return func(c *managerConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithStdout sets where script print output goes.
func WithStdout(w io.Writer) Option {
	return func(c *managerConfig) {
		if w != nil {
			c.stdout = w
		}
	}
}

// WithRuntimeConfig sets the VM defaults used for every plugin.
func WithRuntimeConfig(cfg entities.Config) Option {
	return func(c *managerConfig) {
		c.runtime = cfg
	}
}

// WithValidator replaces the manifest validator.
func WithValidator(v ports.ManifestValidator) Option {
	return func(c *managerConfig) {
		if v != nil {
			c.validator = v
		}
	}
}

// WithResolver replaces the dependency resolver.
func WithResolver(r *dependency.Resolver) Option {
	return func(c *managerConfig) {
		c.resolver = r
	}
}
