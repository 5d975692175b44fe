package entities

// Config holds runtime defaults shared by the manager and the VMs it creates.
type Config struct {
	// LogLevel is the logging verbosity level (e.g., "debug", "info", "warn", "error").
	LogLevel string `json:"log_level,omitempty" yaml:"log_level,omitempty" toml:"log_level,omitempty" validate:"omitempty,oneof=debug info warn warning error"`

	// CallStackSize bounds the Lua call stack of each VM.
	CallStackSize int `json:"call_stack_size" yaml:"call_stack_size" toml:"call_stack_size" validate:"gt=0"`

	// RegistrySize is the initial size of each VM's value registry.
	RegistrySize int `json:"registry_size" yaml:"registry_size" toml:"registry_size" validate:"gte=0"`

	// MaxTableDepth bounds nesting when tables are marshaled.
	MaxTableDepth int `json:"max_table_depth" yaml:"max_table_depth" toml:"max_table_depth" validate:"gt=0"`
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		LogLevel:      "info",
		CallStackSize: 256,
		RegistrySize:  1024 * 20,
		MaxTableDepth: 64,
	}
}

// ConfigOption is a functional option for configuring runtime settings.
type ConfigOption func(*Config)

// WithMaxTableDepth overrides the marshaling depth limit.
func WithMaxTableDepth(depth int) ConfigOption {
	return func(c *Config) {
		c.MaxTableDepth = depth
	}
}

// WithCallStackSize overrides the Lua call stack size.
func WithCallStackSize(size int) ConfigOption {
	return func(c *Config) {
		c.CallStackSize = size
	}
}

// NewConfig returns DefaultConfig with opts applied.
func NewConfig(opts ...ConfigOption) Config {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
