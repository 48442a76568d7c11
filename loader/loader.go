// Package loader resolves a project or plugin target into runnable agent
// descriptors and turns each into a live runtime handle.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/agentstack/agent-acceptor/bootstrap"
	"github.com/agentstack/agent-acceptor/types"
)

// LoadedTarget is the result of resolving a target path: either a project
// (one or more agent descriptors) or a single plugin under test.
type LoadedTarget struct {
	Path     string
	IsPlugin bool
	Agents   []types.AgentSpec
	Plugin   types.Plugin
}

// manifest is the on-disk target descriptor.
type manifest struct {
	Kind    string `yaml:"kind"`              // "plugin" or "project"
	Plugin  string `yaml:"plugin,omitempty"`  // kind: plugin
	Project string `yaml:"project,omitempty"` // kind: project, registered module
	Agents  []struct {
		Character     string          `yaml:"character,omitempty"` // path to a character file
		CharacterDef  types.Character `yaml:"characterDef,omitempty"`
		Plugins       []string        `yaml:"plugins,omitempty"`
	} `yaml:"agents,omitempty"`
}

const manifestFileName = "acceptor.yaml"

// Loader resolves target paths against the module registry.
type Loader struct {
	reg *Registry
	log *zap.SugaredLogger
}

// New creates a loader over the given registry.
func New(reg *Registry, log *zap.SugaredLogger) *Loader {
	return &Loader{reg: reg, log: log}
}

// Load resolves a target. The path may name a registered module directly
// (plugin first, then project), or point at a manifest file or a directory
// containing one.
func (l *Loader) Load(targetPath string) (*LoadedTarget, error) {
	if targetPath == "" {
		return nil, errors.New("target path is required")
	}

	// Registered module names win over filesystem lookups.
	if p, ok := l.reg.Plugin(targetPath); ok {
		l.log.Debugw("target resolved to registered plugin", "plugin", targetPath)
		return &LoadedTarget{Path: targetPath, IsPlugin: true, Plugin: p}, nil
	}
	if proj, ok := l.reg.Project(targetPath); ok {
		l.log.Debugw("target resolved to registered project", "project", targetPath)
		return &LoadedTarget{Path: targetPath, Agents: proj.Agents}, nil
	}

	manifestPath := targetPath
	if info, err := os.Stat(targetPath); err == nil && info.IsDir() {
		manifestPath = filepath.Join(targetPath, manifestFileName)
	}

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, fmt.Errorf("target %s is neither a registered module nor a manifest: %w", targetPath, err)
	}

	var m manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", manifestPath, err)
	}

	switch m.Kind {
	case "plugin":
		return l.loadPluginManifest(targetPath, &m)
	case "project":
		return l.loadProjectManifest(targetPath, manifestPath, &m)
	default:
		return nil, fmt.Errorf("manifest %s: unknown kind %q", manifestPath, m.Kind)
	}
}

func (l *Loader) loadPluginManifest(targetPath string, m *manifest) (*LoadedTarget, error) {
	if m.Plugin == "" {
		return nil, errors.New("plugin manifest requires a plugin name")
	}
	p, ok := l.reg.Plugin(m.Plugin)
	if !ok {
		return nil, fmt.Errorf("plugin %s is not registered", m.Plugin)
	}
	return &LoadedTarget{Path: targetPath, IsPlugin: true, Plugin: p}, nil
}

func (l *Loader) loadProjectManifest(targetPath, manifestPath string, m *manifest) (*LoadedTarget, error) {
	if m.Project != "" {
		proj, ok := l.reg.Project(m.Project)
		if !ok {
			return nil, fmt.Errorf("project %s is not registered", m.Project)
		}
		return &LoadedTarget{Path: targetPath, Agents: proj.Agents}, nil
	}

	if len(m.Agents) == 0 {
		return nil, errors.New("project manifest declares no agents")
	}

	baseDir := filepath.Dir(manifestPath)
	specs := make([]types.AgentSpec, 0, len(m.Agents))
	for i, entry := range m.Agents {
		var character types.Character
		switch {
		case entry.Character != "":
			path := entry.Character
			if !filepath.IsAbs(path) {
				path = filepath.Join(baseDir, path)
			}
			ch, err := bootstrap.LoadCharacterTryPath(path)
			if err != nil {
				return nil, fmt.Errorf("agent %d: %w", i, err)
			}
			character = *ch
		case entry.CharacterDef.Name != "":
			character = entry.CharacterDef
		default:
			return nil, fmt.Errorf("agent %d: character is required", i)
		}

		plugins := entry.Plugins
		if len(plugins) == 0 {
			plugins = character.Plugins
		}
		specs = append(specs, types.AgentSpec{
			Character: character,
			Plugins:   plugins,
		})
	}
	return &LoadedTarget{Path: targetPath, Agents: specs}, nil
}
