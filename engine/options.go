package engine

import (
	"io"
	"log/slog"
	"os"

	"github.com/reglet-dev/reglet-lua/domain/entities"
)

// Option configures a VM.
type Option func(*vmConfig)

type vmConfig struct {
	stdout      io.Writer
	logger      *slog.Logger
	name        string
	packageDirs []string
	runtime     entities.Config
}

func defaultVMConfig() vmConfig {
	return vmConfig{
		stdout:  os.Stdout,
		logger:  slog.Default(),
		runtime: entities.DefaultConfig(),
	}
}

// WithRuntimeConfig sets the call stack size, registry size and table depth limit.
func WithRuntimeConfig(cfg entities.Config) Option {
	return func(c *vmConfig) {
		c.runtime = cfg
	}
}

// WithStdout redirects the script print function (default: os.Stdout).
func WithStdout(w io.Writer) Option {
	return func(c *vmConfig) {
		if w != nil {
			c.stdout = w
		}
	}
}

// WithLogger sets the logger used for VM lifecycle events and script warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(c *vmConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithName labels the VM in logs and diagnostics, usually with the plugin name.
func WithName(name string) Option {
	return func(c *vmConfig) {
		c.name = name
	}
}

// WithPackageDir prepends dir/?.lua and dir/?/init.lua to package.path so that
// require resolves modules shipped next to the entry point.
func WithPackageDir(dir string) Option {
	return func(c *vmConfig) {
		if dir != "" {
			c.packageDirs = append(c.packageDirs, dir)
		}
	}
}
