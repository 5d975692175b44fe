// Package entities provides the core domain types of the Lua plugin manager:
// the Value union that crosses the native/script boundary, plugin manifests,
// native function and request descriptors, and the plugin lifecycle states.
package entities
