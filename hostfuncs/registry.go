package hostfuncs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/engine"
	"github.com/reglet-dev/reglet-lua/marshal"
)

// Registry is the collection of native functions and host request declarations
// shared by every plugin of a manager context. Functions may be added after
// construction; a VM only sees the functions present when it was bound.
type Registry struct {
	functions  map[string]entities.NativeFunctionDescriptor
	wrapped    map[string]Handler
	requests   map[string]entities.RequestDeclaration
	logger     *slog.Logger
	middleware []Middleware
	mu         sync.RWMutex
}

// registryBuilder accumulates configuration during registry construction.
type registryBuilder struct {
	logger     *slog.Logger
	functions  []entities.NativeFunctionDescriptor
	requests   []entities.RequestDeclaration
	middleware []Middleware
	errors     []error
}

// NewRegistry creates a Registry with the given options.
// Returns the first registration error, such as a duplicate function name.
//
// Example usage:
//
//	registry, err := NewRegistry(
//	    WithMiddleware(PanicRecoveryMiddleware()),
//	    WithBundle(CoreBundle(logger)),
//	    WithFunction(Func2("add", "Adds two integers", add)),
//	)
func NewRegistry(opts ...RegistryOption) (*Registry, error) {
	b := &registryBuilder{}
	for _, opt := range opts {
		opt(b)
	}
	if len(b.errors) > 0 {
		return nil, b.errors[0]
	}

	logger := b.logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Registry{
		functions:  make(map[string]entities.NativeFunctionDescriptor),
		wrapped:    make(map[string]Handler),
		requests:   make(map[string]entities.RequestDeclaration),
		middleware: b.middleware,
		logger:     logger,
	}
	for _, desc := range b.functions {
		if err := r.Register(desc); err != nil {
			return nil, err
		}
	}
	for _, decl := range b.requests {
		if err := r.DeclareRequest(decl); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds a native function. The middleware chain is applied once here
// (FIFO order, first middleware wraps outermost).
func (r *Registry) Register(desc entities.NativeFunctionDescriptor) error {
	if desc.Name == "" {
		return fmt.Errorf("native function name cannot be empty")
	}
	if desc.Func == nil {
		return fmt.Errorf("native function %q has no implementation", desc.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.functions[desc.Name]; exists {
		return &errors.RegistryError{Name: desc.Name, What: "function"}
	}

	wrapped := desc.Func
	for i := len(r.middleware) - 1; i >= 0; i-- {
		wrapped = r.middleware[i](wrapped)
	}
	r.functions[desc.Name] = desc
	r.wrapped[desc.Name] = wrapped
	r.logger.Debug("native function registered", "function", desc.Name, "signature", desc.Signature.String())
	return nil
}

// DeclareRequest records a request every plugin loaded afterwards must provide.
func (r *Registry) DeclareRequest(decl entities.RequestDeclaration) error {
	if decl.Name == "" {
		return fmt.Errorf("request name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.requests[decl.Name]; exists {
		return &errors.RegistryError{Name: decl.Name, What: "request"}
	}
	r.requests[decl.Name] = decl
	return nil
}

// Has returns true if a native function with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.functions[name]
	return ok
}

// Lookup returns the descriptor registered under name.
func (r *Registry) Lookup(name string) (entities.NativeFunctionDescriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	desc, ok := r.functions[name]
	return desc, ok
}

// Names returns a sorted list of all registered function names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Request returns the host declaration for a request name.
func (r *Registry) Request(name string) (entities.RequestDeclaration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decl, ok := r.requests[name]
	return decl, ok
}

// Requests returns every host declaration sorted by name.
func (r *Registry) Requests() []entities.RequestDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	decls := make([]entities.RequestDeclaration, 0, len(r.requests))
	for _, decl := range r.requests {
		decls = append(decls, decl)
	}
	sort.Slice(decls, func(i, j int) bool { return decls[i].Name < decls[j].Name })
	return decls
}

// Invoke validates args against the function's signature and runs it through
// the middleware chain. The callable never runs when the signature check fails.
func (r *Registry) Invoke(ctx context.Context, name string, args ...entities.Value) (entities.Value, error) {
	return r.invoke(ctx, name, "", args)
}

func (r *Registry) invoke(ctx context.Context, name, plugin string, args []entities.Value) (entities.Value, error) {
	r.mu.RLock()
	desc, ok := r.functions[name]
	handler := r.wrapped[name]
	r.mu.RUnlock()
	if !ok {
		return entities.Nil(), &NotFoundError{Name: name}
	}

	if err := marshal.CheckSignature(name, desc.Signature, args); err != nil {
		return entities.Nil(), err
	}

	hctx := HostContextFrom(ctx, name, plugin)
	return handler(hctx, args)
}

// BindOption configures Bind.
type BindOption func(*bindConfig)

type bindConfig struct {
	plugin string
}

// WithPluginName tags calls from the bound VM with the plugin name, which
// middleware can read from HostContext.
func WithPluginName(name string) BindOption {
	return func(c *bindConfig) {
		c.plugin = name
	}
}

// Bind installs every registered function into vm. Each installed callback
// converts engine values, checks the signature, runs the middleware chain and
// the native callable, then hands the single result back to the script.
func (r *Registry) Bind(vm *engine.VM, opts ...BindOption) error {
	var cfg bindConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, name := range r.Names() {
		desc, ok := r.Lookup(name)
		if !ok {
			continue
		}
		if err := vm.RegisterNative(name, desc.Signature.Arity(), r.trampoline(name, cfg.plugin)); err != nil {
			return fmt.Errorf("failed to bind native function %q: %w", name, err)
		}
	}
	return nil
}

func (r *Registry) trampoline(name, plugin string) engine.Callback {
	return func(ctx context.Context, args []entities.Value) ([]entities.Value, error) {
		result, err := r.invoke(ctx, name, plugin, args)
		if err != nil {
			return nil, err
		}
		return []entities.Value{result}, nil
	}
}

// WithFunction registers a native function descriptor.
func WithFunction(desc entities.NativeFunctionDescriptor) RegistryOption {
	return func(b *registryBuilder) {
		b.functions = append(b.functions, desc)
	}
}

// WithRequest declares a host request.
func WithRequest(decl entities.RequestDeclaration) RegistryOption {
	return func(b *registryBuilder) {
		b.requests = append(b.requests, decl)
	}
}

// WithMiddleware adds middleware to the registry.
// Middleware executes in FIFO order (first added wraps first).
func WithMiddleware(mw ...Middleware) RegistryOption {
	return func(b *registryBuilder) {
		b.middleware = append(b.middleware, mw...)
	}
}

// WithRegistryLogger sets the logger used for registration events.
func WithRegistryLogger(logger *slog.Logger) RegistryOption {
	return func(b *registryBuilder) {
		b.logger = logger
	}
}
