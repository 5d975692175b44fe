package host

import (
	"sync"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/hostfuncs"
)

// Context is the host side of the plugin framework: the native functions and
// request declarations shared by every plugin, and the single Manager that
// loads Lua plugins for it.
type Context struct {
	registry *hostfuncs.Registry
	manager  *Manager
	mu       sync.Mutex
}

// NewContext creates a Context whose registry is built from opts.
//
// Example usage:
//
//	hctx, err := host.NewContext(
//	    hostfuncs.WithMiddleware(hostfuncs.PanicRecoveryMiddleware()),
//	    hostfuncs.WithBundle(hostfuncs.CoreBundle(logger)),
//	)
func NewContext(opts ...hostfuncs.RegistryOption) (*Context, error) {
	reg, err := hostfuncs.NewRegistry(opts...)
	if err != nil {
		return nil, err
	}
	return &Context{registry: reg}, nil
}

// Registry returns the registry shared by the context's plugins.
func (c *Context) Registry() *hostfuncs.Registry {
	return c.registry
}

// RegisterFunction exposes a native function to plugins loaded from now on.
func (c *Context) RegisterFunction(desc entities.NativeFunctionDescriptor) error {
	return c.registry.Register(desc)
}

// RegisterRequest declares a request every plugin loaded from now on must
// provide. A nil output leaves the result unchecked.
func (c *Context) RegisterRequest(name string, inputs []entities.Type, output *entities.Type) error {
	return c.registry.DeclareRequest(entities.RequestDeclaration{Name: name, Inputs: inputs, Output: output})
}

// RegisterManager attaches m to the context. A context holds at most one
// manager and a manager belongs to at most one context.
func (c *Context) RegisterManager(m *Manager) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.manager != nil {
		return &errors.ManagerError{Kind: errors.ManagerAlreadyRegistered}
	}
	if !m.hostCtx.CompareAndSwap(nil, c) {
		return &errors.ManagerError{Kind: errors.ManagerAlreadyRegistered}
	}
	c.manager = m
	m.cfg.logger.Debug("manager registered", "functions", len(c.registry.Names()))
	return nil
}

// Manager returns the registered manager, or nil.
func (c *Context) Manager() *Manager {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.manager
}
