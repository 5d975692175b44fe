package entities

// PluginState is a step of a plugin's lifecycle.
//
//	Unloaded -> Validating -> Loading -> Ready <-> Dispatching
//	Ready -> Unloading -> Unloaded
//	Validating | Loading | Dispatching -> Failed
type PluginState int32

const (
	StateUnloaded PluginState = iota
	StateValidating
	StateLoading
	StateReady
	StateDispatching
	StateUnloading
	StateFailed
)

var stateNames = [...]string{
	StateUnloaded:    "unloaded",
	StateValidating:  "validating",
	StateLoading:     "loading",
	StateReady:       "ready",
	StateDispatching: "dispatching",
	StateUnloading:   "unloading",
	StateFailed:      "failed",
}

func (s PluginState) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Loaded reports whether the plugin is visible to the host as loaded.
func (s PluginState) Loaded() bool {
	return s == StateReady || s == StateDispatching
}

// PluginInfo is a read-only snapshot of a managed plugin.
type PluginInfo struct {
	Manifest *PluginManifest           `json:"manifest"`
	Name     string                    `json:"name"`
	Requests []ScriptRequestDescriptor `json:"requests,omitempty"`
	State    PluginState               `json:"state"`
}
