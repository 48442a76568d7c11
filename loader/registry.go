package loader

import (
	"fmt"
	"sort"
	"sync"

	"golang.org/x/mod/semver"

	"github.com/agentstack/agent-acceptor/types"
)

// Registry holds the plugin and project modules the process knows about.
// Manifests reference modules by name; packages register themselves at
// startup.
type Registry struct {
	mu       sync.RWMutex
	plugins  map[string]types.Plugin
	projects map[string]*Project
}

// Project is a programmatically registered project module: agent
// descriptors carrying characters, directly-declared plugin names, optional
// project-level suites and init hooks.
type Project struct {
	Name   string
	Agents []types.AgentSpec
}

// NewRegistry creates an empty module registry.
func NewRegistry() *Registry {
	return &Registry{
		plugins:  make(map[string]types.Plugin),
		projects: make(map[string]*Project),
	}
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the process-wide module registry.
func DefaultRegistry() *Registry { return defaultRegistry }

// RegisterPlugin adds a plugin module. Versions, when declared, must be
// valid semver.
func (r *Registry) RegisterPlugin(p types.Plugin) error {
	if p == nil || p.Name() == "" {
		return fmt.Errorf("plugin name is required")
	}
	if v := p.Version(); v != "" && !semver.IsValid(normalizeVersion(v)) {
		return fmt.Errorf("plugin %s declares invalid version %q", p.Name(), v)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.plugins[p.Name()]; exists {
		return fmt.Errorf("plugin %s already registered", p.Name())
	}
	r.plugins[p.Name()] = p
	return nil
}

// RegisterProject adds a project module.
func (r *Registry) RegisterProject(p *Project) error {
	if p == nil || p.Name == "" {
		return fmt.Errorf("project name is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.projects[p.Name]; exists {
		return fmt.Errorf("project %s already registered", p.Name)
	}
	r.projects[p.Name] = p
	return nil
}

// Plugin looks up a registered plugin by name.
func (r *Registry) Plugin(name string) (types.Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[name]
	return p, ok
}

// Project looks up a registered project by name.
func (r *Registry) Project(name string) (*Project, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.projects[name]
	return p, ok
}

// PluginNames returns the registered plugin names, sorted.
func (r *Registry) PluginNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.plugins))
	for name := range r.plugins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// normalizeVersion accepts both "1.2.3" and "v1.2.3" forms.
func normalizeVersion(v string) string {
	if v == "" {
		return v
	}
	if v[0] != 'v' {
		return "v" + v
	}
	return v
}
