package host

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/reglet-lua/application/dependency"
	"github.com/reglet-dev/reglet-lua/domain/constraint"
	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
	"github.com/reglet-dev/reglet-lua/engine"
	"github.com/reglet-dev/reglet-lua/hostfuncs"
	"github.com/reglet-dev/reglet-lua/marshal"
)

const defaultChunkName = "main.lua"

// Manager loads Lua plugins for a Context and routes requests to them.
// Every plugin gets its own VM; calls into one plugin are serialized while
// different plugins run concurrently.
type Manager struct {
	hostCtx atomic.Pointer[Context]
	plugins map[string]*Plugin
	order   []string
	cfg     managerConfig
	mu      sync.RWMutex
}

// NewManager creates a Manager. It must be registered with a Context before
// it can load plugins.
func NewManager(opts ...Option) *Manager {
	cfg := defaultManagerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.resolver == nil {
		cfg.resolver = dependency.NewResolver(dependency.WithLogger(cfg.logger))
	}
	return &Manager{
		cfg:     cfg,
		plugins: make(map[string]*Plugin),
	}
}

func (m *Manager) registry() (*hostfuncs.Registry, error) {
	hc := m.hostCtx.Load()
	if hc == nil {
		return nil, &errors.ManagerError{Kind: errors.ManagerNotRegistered}
	}
	return hc.registry, nil
}

// Load validates bundle's manifest against the loaded plugins, creates a VM,
// binds the context's native functions and runs the source. On success the
// plugin is Ready; on failure it is Failed and its VM is closed.
//
// The manifest is copied, so later changes by the caller have no effect.
//
// A plugin is rejected when it would close a dependency cycle with the loaded
// plugins, counting optional edges too. Plugin A declaring B as optional
// therefore keeps B from loading with a hard dependency on A even though A is
// Ready. Without that rule a call from A into B and one from B into A could
// each hold one plugin lock while waiting for the other.
func (m *Manager) Load(ctx context.Context, bundle entities.Bundle) error {
	reg, err := m.registry()
	if err != nil {
		return err
	}
	if bundle.Manifest == nil {
		return &errors.ConfigError{Err: fmt.Errorf("bundle has no manifest")}
	}

	p, err := m.reserve(bundle.Manifest)
	if err != nil {
		return err
	}
	logger := m.cfg.logger.With("plugin", p.name)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := m.validate(p); err != nil {
		p.fail()
		logger.Warn("plugin rejected", "error", err)
		return err
	}

	p.transition(entities.StateValidating, entities.StateLoading)
	if err := m.instantiate(ctx, reg, p, bundle, logger); err != nil {
		p.release()
		p.fail()
		logger.Error("plugin failed to load", "error", err)
		return err
	}
	p.transition(entities.StateLoading, entities.StateReady)

	m.mu.Lock()
	m.order = append(m.order, p.name)
	m.mu.Unlock()

	logger.Info("plugin loaded",
		"version", p.manifest.PluginVersion().String(),
		"requests", len(p.Info().Requests),
		"abi", engine.ABI().Name)
	return nil
}

// reserve claims the plugin name. A Failed or Unloaded entry is replaced. The
// new plugin enters the map already Validating, so a concurrent Load of the
// same name sees it as taken.
func (m *Manager) reserve(manifest *entities.PluginManifest) (*Plugin, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.plugins[manifest.Name]; ok {
		switch existing.State() {
		case entities.StateUnloaded, entities.StateFailed:
		default:
			return nil, &errors.ManagerError{Kind: errors.PluginAlreadyLoaded, Plugin: manifest.Name}
		}
	}
	p := newPlugin(manifest)
	p.transition(entities.StateUnloaded, entities.StateValidating)
	m.plugins[manifest.Name] = p
	return p, nil
}

// validate checks the manifest, its dependencies against loaded plugins, and
// that loading it would not close a dependency cycle with them.
func (m *Manager) validate(p *Plugin) error {
	if err := m.cfg.validator.Validate(p.manifest); err != nil {
		return err
	}

	loaded := m.loaded(p.name)
	versions := make(map[string]constraint.Version, len(loaded))
	manifests := make([]*entities.PluginManifest, 0, len(loaded)+1)
	for _, other := range loaded {
		versions[other.name] = other.manifest.PluginVersion()
		manifests = append(manifests, other.manifest)
	}

	if err := m.cfg.resolver.Validate(p.manifest, versions); err != nil {
		return err
	}
	if _, err := dependency.Order(append(manifests, p.manifest)); err != nil {
		return err
	}
	return nil
}

func (m *Manager) instantiate(ctx context.Context, reg *hostfuncs.Registry, p *Plugin, bundle entities.Bundle, logger *slog.Logger) error {
	vm, err := engine.New(
		engine.WithName(p.name),
		engine.WithPackageDir(bundle.Dir),
		engine.WithLogger(logger),
		engine.WithStdout(m.cfg.stdout),
		engine.WithRuntimeConfig(m.cfg.runtime),
	)
	if err != nil {
		return err
	}
	p.vm = vm
	p.setVMID(vm.ID())

	if err := reg.Bind(vm, hostfuncs.WithPluginName(p.name)); err != nil {
		return err
	}
	if err := m.bindAPI(vm, p); err != nil {
		return err
	}

	chunk := bundle.ChunkName
	if chunk == "" {
		chunk = defaultChunkName
	}
	exports, err := vm.Execute(withDispatch(ctx, p.name), chunk, bundle.Source)
	if err != nil {
		return attribute(err, p.name)
	}

	exposed := exports.Requests()
	requests := make(map[string]entities.FunctionRef, len(exposed))
	for _, req := range exposed {
		ref, _ := exports.Lookup(req.Name)
		requests[req.Name] = ref
	}

	// Host declared requests fall back to globals when the export table lacks them.
	for _, decl := range reg.Requests() {
		if _, ok := requests[decl.Name]; ok {
			continue
		}
		v, err := vm.Global(decl.Name)
		if err != nil {
			return attribute(err, p.name)
		}
		ref, ok := v.AsRef()
		if !ok {
			return &errors.ScriptError{
				Plugin:  p.name,
				Phase:   "load",
				Message: fmt.Sprintf("request %q is not provided", decl.Name),
				Err:     &errors.DispatchError{Kind: errors.UnknownRequest, Plugin: p.name, Request: decl.Name},
			}
		}
		requests[decl.Name] = ref
		exposed = append(exposed, entities.ScriptRequestDescriptor{Name: decl.Name})
	}

	p.requests = requests
	p.setExposed(exposed)
	return nil
}

// LoadAll loads bundles in dependency order. A failing plugin does not stop
// the others; every failure is returned joined.
func (m *Manager) LoadAll(ctx context.Context, bundles []entities.Bundle) error {
	byName := make(map[string]entities.Bundle, len(bundles))
	manifests := make([]*entities.PluginManifest, 0, len(bundles))
	for _, b := range bundles {
		if b.Manifest == nil {
			return &errors.ConfigError{Err: fmt.Errorf("bundle has no manifest")}
		}
		if _, dup := byName[b.Manifest.Name]; dup {
			return &errors.ManagerError{Kind: errors.PluginAlreadyLoaded, Plugin: b.Manifest.Name}
		}
		byName[b.Manifest.Name] = b
		manifests = append(manifests, b.Manifest)
	}

	order, err := dependency.Order(manifests)
	if err != nil {
		return err
	}

	var errs []error
	for _, name := range order {
		if err := m.Load(ctx, byName[name]); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// Dispatch calls request on plugin with args and returns every result.
// When the host declared the request, args and the first result are checked
// against the declaration.
func (m *Manager) Dispatch(ctx context.Context, plugin, request string, args ...entities.Value) ([]entities.Value, error) {
	p := m.lookup(plugin)
	if p == nil {
		return nil, &errors.DispatchError{Kind: errors.UnknownPlugin, Plugin: plugin}
	}

	return m.call(ctx, p, func(ctx context.Context) ([]entities.Value, error) {
		ref, ok := p.requests[request]
		if !ok {
			return nil, &errors.DispatchError{Kind: errors.UnknownRequest, Plugin: plugin, Request: request}
		}

		var decl entities.RequestDeclaration
		declared := false
		if reg, err := m.registry(); err == nil {
			decl, declared = reg.Request(request)
		}
		if declared {
			if err := marshal.CheckSignature(request, entities.Signature{Params: decl.Inputs}, args); err != nil {
				return nil, err
			}
		}

		results, err := p.vm.CallRef(ctx, ref, args...)
		if err != nil {
			return nil, err
		}
		if declared {
			if err := marshal.CheckResult(request, decl.Output, results); err != nil {
				return nil, err
			}
		}
		return results, nil
	})
}

// InvokeRef calls a function reference a plugin handed out, for example as a
// callback argument to a native function.
func (m *Manager) InvokeRef(ctx context.Context, ref entities.FunctionRef, args ...entities.Value) ([]entities.Value, error) {
	p := m.owner(ref.Handle)
	if p == nil {
		return nil, &errors.MarshalError{
			Kind:    errors.StaleReference,
			Message: fmt.Sprintf("%s belongs to no loaded plugin", ref),
		}
	}
	return m.call(ctx, p, func(ctx context.Context) ([]entities.Value, error) {
		return p.vm.CallRef(ctx, ref, args...)
	})
}

// call runs fn with the plugin's VM while holding its lock and keeps the state
// machine in step. A call back into a plugin that is already on the current
// dispatch chain is refused instead of deadlocking.
func (m *Manager) call(ctx context.Context, p *Plugin, fn func(context.Context) ([]entities.Value, error)) ([]entities.Value, error) {
	if inChain(ctx, p.name) {
		return nil, &errors.DispatchError{Kind: errors.NotReady, Plugin: p.name, State: entities.StateDispatching.String()}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.transition(entities.StateReady, entities.StateDispatching) {
		state := p.State()
		if state == entities.StateUnloaded {
			return nil, &errors.DispatchError{Kind: errors.UnknownPlugin, Plugin: p.name}
		}
		return nil, &errors.DispatchError{Kind: errors.NotReady, Plugin: p.name, State: state.String()}
	}

	results, err := fn(withDispatch(ctx, p.name))
	if err != nil {
		err = attribute(err, p.name)
		var se *errors.ScriptError
		if stdErrors.As(err, &se) && se.Panic {
			p.release()
			p.fail()
			m.dropOrder(p.name)
			m.cfg.logger.Error("plugin failed", "plugin", p.name, "error", err)
			return nil, err
		}
	}
	p.transition(entities.StateDispatching, entities.StateReady)
	return results, err
}

// Unload waits for the plugin's in-flight call, closes its VM and forgets it.
// References the plugin handed out become stale. Loaded dependents are kept;
// their calls into the plugin fail from then on.
func (m *Manager) Unload(ctx context.Context, name string) error {
	if inChain(ctx, name) {
		return &errors.DispatchError{Kind: errors.NotReady, Plugin: name, State: entities.StateDispatching.String()}
	}
	p := m.lookup(name)
	if p == nil {
		return &errors.DispatchError{Kind: errors.UnknownPlugin, Plugin: name}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.transition(entities.StateReady, entities.StateUnloading) && !p.transition(entities.StateFailed, entities.StateUnloading) {
		state := p.State()
		if state == entities.StateUnloaded {
			return &errors.DispatchError{Kind: errors.UnknownPlugin, Plugin: name}
		}
		return &errors.DispatchError{Kind: errors.NotReady, Plugin: name, State: state.String()}
	}

	if dependents := m.dependents(name); len(dependents) > 0 {
		m.cfg.logger.Warn("unloading plugin with loaded dependents", "plugin", name, "dependents", dependents)
	}

	p.release()
	p.transition(entities.StateUnloading, entities.StateUnloaded)

	m.mu.Lock()
	if m.plugins[name] == p {
		delete(m.plugins, name)
	}
	m.mu.Unlock()
	m.dropOrder(name)

	m.cfg.logger.Info("plugin unloaded", "plugin", name)
	return nil
}

// Close unloads every plugin, dependents before their dependencies.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.RLock()
	names := make([]string, 0, len(m.plugins))
	for i := len(m.order) - 1; i >= 0; i-- {
		names = append(names, m.order[i])
	}
	failed := make([]string, 0)
	for name, p := range m.plugins {
		if p.State() == entities.StateFailed {
			failed = append(failed, name)
		}
	}
	m.mu.RUnlock()
	sort.Strings(failed)

	var errs []error
	for _, name := range append(names, failed...) {
		if err := m.Unload(ctx, name); err != nil {
			errs = append(errs, err)
		}
	}
	return stdErrors.Join(errs...)
}

// Plugins returns the sorted names of loaded plugins.
func (m *Manager) Plugins() []string {
	loaded := m.loaded("")
	names := make([]string, len(loaded))
	for i, p := range loaded {
		names[i] = p.name
	}
	return names
}

// Info returns a snapshot of a plugin known to the manager, including failed ones.
func (m *Manager) Info(name string) (entities.PluginInfo, bool) {
	p := m.lookup(name)
	if p == nil {
		return entities.PluginInfo{}, false
	}
	return p.Info(), true
}

// dropOrder removes name from the load order.
func (m *Manager) dropOrder(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, n := range m.order {
		if n == name {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *Manager) lookup(name string) *Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.plugins[name]
}

func (m *Manager) owner(vmID string) *Plugin {
	if vmID == "" {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, p := range m.plugins {
		if p.VMID() == vmID {
			return p
		}
	}
	return nil
}

// loaded returns Ready or Dispatching plugins other than exclude, sorted by name.
func (m *Manager) loaded(exclude string) []*Plugin {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Plugin, 0, len(m.plugins))
	for name, p := range m.plugins {
		if name != exclude && p.State().Loaded() {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

func (m *Manager) dependents(name string) []string {
	var out []string
	for _, p := range m.loaded(name) {
		if _, ok := p.manifest.DependsOn(name); ok {
			out = append(out, p.name)
		}
	}
	return out
}

// attribute names the plugin on script errors raised by its VM.
func attribute(err error, plugin string) error {
	var se *errors.ScriptError
	if stdErrors.As(err, &se) && se.Plugin == "" {
		se.Plugin = plugin
	}
	return err
}

type dispatchChainKey struct{}

// withDispatch records that a call into plugin is in progress on ctx.
func withDispatch(ctx context.Context, plugin string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	chain, _ := ctx.Value(dispatchChainKey{}).([]string)
	next := make([]string, len(chain)+1)
	copy(next, chain)
	next[len(chain)] = plugin
	return context.WithValue(ctx, dispatchChainKey{}, next)
}

func inChain(ctx context.Context, plugin string) bool {
	if ctx == nil {
		return false
	}
	chain, _ := ctx.Value(dispatchChainKey{}).([]string)
	for _, name := range chain {
		if name == plugin {
			return true
		}
	}
	return false
}
