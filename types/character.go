package types

import "context"

// Character describes the persona an agent runs with. Character files are
// authored as JSON or YAML; validation beyond basic shape is the concern of
// the character tooling, not the harness.
type Character struct {
	Name     string         `json:"name" yaml:"name"`
	System   string         `json:"system,omitempty" yaml:"system,omitempty"`
	Bio      []string       `json:"bio,omitempty" yaml:"bio,omitempty"`
	Plugins  []string       `json:"plugins,omitempty" yaml:"plugins,omitempty"`
	Settings map[string]any `json:"settings,omitempty" yaml:"settings,omitempty"`
}

// InitFunc is an optional hook invoked once an agent (or plugin) is wired
// into a live runtime.
type InitFunc func(ctx context.Context, runtime *RuntimeHandle) error

// AgentSpec is a runnable agent descriptor resolved from a project target:
// a character, the plugin names directly declared for the agent, optional
// project-level suites owned by the agent, and an optional init hook.
type AgentSpec struct {
	Character Character
	Plugins   []string
	Suites    []TestSuite
	Init      InitFunc
}
