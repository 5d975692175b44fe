package host

import (
	"sync"
	"sync/atomic"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/engine"
)

// Plugin is one loaded Lua plugin: its manifest, its VM and the requests it
// exposes. The VM and requests are only touched while mu is held; exposed is
// guarded by metaMu so snapshots never wait for a running call.
type Plugin struct {
	manifest *entities.PluginManifest
	vm       *engine.VM
	requests map[string]entities.FunctionRef
	exposed  []entities.ScriptRequestDescriptor
	name     string
	vmID     string
	mu       sync.Mutex
	metaMu   sync.RWMutex
	state    atomic.Int32
}

// newPlugin keeps its own copy of manifest; it never changes afterwards.
func newPlugin(manifest *entities.PluginManifest) *Plugin {
	p := &Plugin{name: manifest.Name, manifest: manifest.Clone()}
	p.state.Store(int32(entities.StateUnloaded))
	return p
}

// Name returns the plugin name.
func (p *Plugin) Name() string { return p.name }

// State returns the current lifecycle state.
func (p *Plugin) State() entities.PluginState {
	return entities.PluginState(p.state.Load())
}

// transition moves the plugin from one state to another, failing when the
// plugin is not in the expected state.
func (p *Plugin) transition(from, to entities.PluginState) bool {
	return p.state.CompareAndSwap(int32(from), int32(to))
}

// fail marks the plugin Failed from any state.
func (p *Plugin) fail() {
	p.state.Store(int32(entities.StateFailed))
}

// Info returns a snapshot of the plugin.
func (p *Plugin) Info() entities.PluginInfo {
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	requests := make([]entities.ScriptRequestDescriptor, len(p.exposed))
	copy(requests, p.exposed)
	return entities.PluginInfo{
		Name:     p.name,
		Manifest: p.manifest.Clone(),
		Requests: requests,
		State:    p.State(),
	}
}

// release closes the VM and drops everything the plugin got at load time.
// Callers hold mu.
func (p *Plugin) release() {
	if p.vm != nil {
		p.vm.Close()
	}
	p.setVMID("")
	p.requests = nil
	p.setExposed(nil)
}

// VMID returns the handle of the plugin's VM, empty once unloaded.
func (p *Plugin) VMID() string {
	p.metaMu.RLock()
	defer p.metaMu.RUnlock()
	return p.vmID
}

func (p *Plugin) setVMID(id string) {
	p.metaMu.Lock()
	p.vmID = id
	p.metaMu.Unlock()
}

func (p *Plugin) setExposed(exposed []entities.ScriptRequestDescriptor) {
	p.metaMu.Lock()
	p.exposed = exposed
	p.metaMu.Unlock()
}
