package dependency

import (
	"sort"

	"github.com/reglet-dev/reglet-lua/domain/entities"
	"github.com/reglet-dev/reglet-lua/domain/errors"
)

// Order returns plugin names so that each plugin follows every plugin of the
// set it depends on, required or optional. Dependencies outside the set are
// ignored here; Validate reports them when the plugin is loaded.
//
// The order is deterministic: plugins at the same level appear sorted by name.
// A cycle fails with a DependencyError listing the plugins that could not be
// ordered: the cycle members and anything depending on them.
func Order(manifests []*entities.PluginManifest) ([]string, error) {
	byName := make(map[string]*entities.PluginManifest, len(manifests))
	names := make([]string, 0, len(manifests))
	for _, m := range manifests {
		if _, dup := byName[m.Name]; dup {
			continue
		}
		byName[m.Name] = m
		names = append(names, m.Name)
	}
	sort.Strings(names)

	// An edge from a dependency to its dependent: the dependency loads first.
	dependents := make(map[string][]string, len(names))
	inDegree := make(map[string]int, len(names))
	for _, name := range names {
		m := byName[name]
		deps := append(m.DependencyNames(), m.OptionalDependencyNames()...)
		for _, dep := range deps {
			if _, ok := byName[dep]; !ok {
				continue
			}
			dependents[dep] = append(dependents[dep], name)
			inDegree[name]++
		}
	}

	queue := make([]string, 0, len(names))
	for _, name := range names {
		if inDegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	order := make([]string, 0, len(names))
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		order = append(order, name)

		next := dependents[name]
		sort.Strings(next)
		for _, dependent := range next {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
	}

	if len(order) != len(names) {
		var cycle []string
		for _, name := range names {
			if inDegree[name] > 0 {
				cycle = append(cycle, name)
			}
		}
		return nil, &errors.DependencyError{Kind: errors.DependencyCycle, Plugin: cycle[0], Cycle: cycle}
	}
	return order, nil
}
