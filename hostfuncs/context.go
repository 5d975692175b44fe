package hostfuncs

import (
	"context"
)

// HostContext wraps a standard context.Context with native call helpers.
// It provides access to the invoked function and the calling plugin, and allows
// middleware to store call-scoped values without polluting the standard context.
type HostContext interface {
	context.Context

	// FunctionName returns the name of the native function being invoked.
	FunctionName() string

	// PluginName returns the plugin whose script made the call, if known.
	PluginName() string

	// SetValue stores a call-scoped value. Unlike context.WithValue,
	// this mutates the existing HostContext.
	SetValue(key, value any)

	// GetValue retrieves a call-scoped value set by SetValue.
	GetValue(key any) (value any, ok bool)
}

// hostContext is the concrete implementation of HostContext.
type hostContext struct {
	context.Context
	values     map[any]any
	funcName   string
	pluginName string
}

// NewHostContext creates a new HostContext wrapping the given context.
func NewHostContext(ctx context.Context, funcName, pluginName string) HostContext {
	return &hostContext{
		Context:    ctx,
		funcName:   funcName,
		pluginName: pluginName,
		values:     make(map[any]any),
	}
}

// FunctionName returns the name of the native function being invoked.
func (c *hostContext) FunctionName() string {
	return c.funcName
}

// PluginName returns the calling plugin.
func (c *hostContext) PluginName() string {
	return c.pluginName
}

// SetValue stores a call-scoped value.
func (c *hostContext) SetValue(key, value any) {
	c.values[key] = value
}

// GetValue retrieves a call-scoped value.
func (c *hostContext) GetValue(key any) (any, bool) {
	v, ok := c.values[key]
	return v, ok
}

// HostContextFrom extracts a HostContext from a context.Context.
// If the context is already a HostContext, it is returned directly.
// Otherwise, a new HostContext is created wrapping the given context.
func HostContextFrom(ctx context.Context, funcName, pluginName string) HostContext {
	if hc, ok := ctx.(HostContext); ok {
		return hc
	}
	return NewHostContext(ctx, funcName, pluginName)
}
