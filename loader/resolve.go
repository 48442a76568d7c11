package loader

import (
	"fmt"

	"github.com/agentstack/agent-acceptor/types"
)

// ResolvePlugins expands the directly-declared plugin names into the full
// plugin set, walking declared dependencies (and test-only dependencies when
// testMode is set) breadth-first. Order is deterministic: declaration order
// first, then discovery order; duplicates keep their first position.
func ResolvePlugins(reg *Registry, names []string, testMode bool) ([]types.Plugin, error) {
	var resolved []types.Plugin
	seen := make(map[string]bool)

	queue := make([]string, 0, len(names))
	queue = append(queue, names...)

	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		if seen[name] {
			continue
		}
		seen[name] = true

		p, ok := reg.Plugin(name)
		if !ok {
			return nil, fmt.Errorf("plugin %s is not registered", name)
		}
		resolved = append(resolved, p)

		queue = append(queue, p.Dependencies()...)
		if testMode {
			queue = append(queue, p.TestDependencies()...)
		}
	}

	return resolved, nil
}
