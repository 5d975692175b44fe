// Package dependency decides whether a plugin's declared dependencies are
// satisfied by the plugins already loaded, and in which order a set of plugins
// must be loaded so that every dependency comes first.
package dependency
