package discovery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstack/agent-acceptor/loader"
	"github.com/agentstack/agent-acceptor/logging"
	"github.com/agentstack/agent-acceptor/types"
)

// brokenPlugin fails suite enumeration.
type brokenPlugin struct {
	types.StaticPlugin
	err error
}

func (p *brokenPlugin) Suites() ([]types.TestSuite, error) {
	return nil, p.err
}

func newStaticPlugin(name string, suites ...types.TestSuite) *types.StaticPlugin {
	return &types.StaticPlugin{PluginName: name, TestSuites: suites}
}

func newSuite(name string) types.TestSuite {
	return types.TestSuite{
		Name: name,
		Tests: []types.Test{{
			Name: "noop",
			Fn:   func(ctx context.Context, runtime *types.RuntimeHandle) error { return nil },
		}},
	}
}

func startedAgent(character string, declared []string, plugins ...types.Plugin) loader.StartedAgent {
	spec := types.AgentSpec{
		Character: types.Character{Name: character},
		Plugins:   declared,
	}
	return loader.StartedAgent{
		Spec:   spec,
		Handle: types.NewRuntimeHandle(spec.Character, plugins, nil),
	}
}

func TestDetermineMode(t *testing.T) {
	singleAgentTarget := func(character, plugin string) *loader.LoadedTarget {
		return &loader.LoadedTarget{
			Agents: []types.AgentSpec{{
				Character: types.Character{Name: character},
				Plugins:   []string{plugin},
			}},
		}
	}

	tests := []struct {
		name           string
		target         *loader.LoadedTarget
		force          bool
		allowHeuristic bool
		want           types.ExecutionMode
	}{
		{
			name:   "plugin target",
			target: &loader.LoadedTarget{IsPlugin: true, Plugin: newStaticPlugin("plugin-sql")},
			want:   types.DirectPluginMode,
		},
		{
			name:   "explicit override on project target",
			target: singleAgentTarget("Eliza", "plugin-sql"),
			force:  true,
			want:   types.DirectPluginMode,
		},
		{
			name:   "project target defaults to project mode",
			target: singleAgentTarget("Eliza", "plugin-sql"),
			want:   types.ProjectMode,
		},
		{
			name:   "matching name without heuristic enabled stays project",
			target: singleAgentTarget("plugin-sql test agent", "plugin-sql"),
			want:   types.ProjectMode,
		},
		{
			name:           "matching name with heuristic enabled",
			target:         singleAgentTarget("Plugin-SQL Test Agent", "plugin-sql"),
			allowHeuristic: true,
			want:           types.DirectPluginMode,
		},
		{
			name: "heuristic needs exactly one agent",
			target: &loader.LoadedTarget{
				Agents: []types.AgentSpec{
					{Character: types.Character{Name: "plugin-sql test agent"}, Plugins: []string{"plugin-sql"}},
					{Character: types.Character{Name: "other"}, Plugins: []string{"plugin-sql"}},
				},
			},
			allowHeuristic: true,
			want:           types.ProjectMode,
		},
		{
			name: "heuristic needs exactly one plugin",
			target: &loader.LoadedTarget{
				Agents: []types.AgentSpec{{
					Character: types.Character{Name: "plugin-sql test agent"},
					Plugins:   []string{"plugin-sql", "plugin-http"},
				}},
			},
			allowHeuristic: true,
			want:           types.ProjectMode,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := New(logging.NewNop())
			d.AllowNameHeuristic = tt.allowHeuristic
			assert.Equal(t, tt.want, d.DetermineMode(tt.target, tt.force))
		})
	}
}

func TestMatchesFilter(t *testing.T) {
	assert.True(t, MatchesFilter("database_suite", ""))
	assert.True(t, MatchesFilter("database_suite", "base"))
	assert.True(t, MatchesFilter("database_suite", "database_suite"))
	assert.False(t, MatchesFilter("database_suite", "Base"), "filter is case-sensitive")
	assert.False(t, MatchesFilter("database_suite", "missing"))
}

func TestDiscoverDirectPluginMode(t *testing.T) {
	plugin := newStaticPlugin("plugin-sql", newSuite("sql_basic"), newSuite("sql_tx"))
	target := &loader.LoadedTarget{IsPlugin: true, Plugin: plugin}
	agents := []loader.StartedAgent{startedAgent("plugin-sql test agent", []string{"plugin-sql"}, plugin)}

	sources := New(logging.NewNop()).Discover(target, agents, types.DirectPluginMode, Options{})
	require.Len(t, sources, 1)
	assert.Equal(t, SourcePlugin, sources[0].Kind)
	assert.Equal(t, "plugin-sql", sources[0].Owner)
	assert.NoError(t, sources[0].Err)
	assert.Len(t, sources[0].Suites, 2)
}

func TestDiscoverDirectIgnoresSkipPlugins(t *testing.T) {
	plugin := newStaticPlugin("plugin-sql", newSuite("sql_basic"))
	target := &loader.LoadedTarget{IsPlugin: true, Plugin: plugin}
	agents := []loader.StartedAgent{startedAgent("agent", []string{"plugin-sql"}, plugin)}

	sources := New(logging.NewNop()).Discover(target, agents, types.DirectPluginMode, Options{SkipPlugins: true})
	require.Len(t, sources, 1, "the plugin under test always runs in direct mode")
	assert.Len(t, sources[0].Suites, 1)
}

func TestDiscoverDirectCapturesEnumerationError(t *testing.T) {
	plugin := &brokenPlugin{
		StaticPlugin: types.StaticPlugin{PluginName: "plugin-broken"},
		err:          errors.New("dynamic suite build failed"),
	}
	target := &loader.LoadedTarget{IsPlugin: true, Plugin: plugin}
	agents := []loader.StartedAgent{startedAgent("agent", []string{"plugin-broken"}, plugin)}

	sources := New(logging.NewNop()).Discover(target, agents, types.DirectPluginMode, Options{})
	require.Len(t, sources, 1)
	require.Error(t, sources[0].Err)
	assert.Contains(t, sources[0].Err.Error(), "plugin-broken")
}

func TestDiscoverDirectOnProjectTarget(t *testing.T) {
	// Direct mode forced on a project-shaped target: no loaded plugin module,
	// so the plugin under test comes from the sole agent's declared plugin.
	plugin := newStaticPlugin("plugin-sql", newSuite("sql_basic"))
	agent := startedAgent("SQL Checker", []string{"plugin-sql"}, plugin)
	agent.Spec.Suites = []types.TestSuite{newSuite("project_e2e")}
	target := &loader.LoadedTarget{Path: "sql-test-project", Agents: []types.AgentSpec{agent.Spec}}

	sources := New(logging.NewNop()).Discover(target, []loader.StartedAgent{agent}, types.DirectPluginMode, Options{})
	require.Len(t, sources, 1)
	assert.Equal(t, SourcePlugin, sources[0].Kind)
	assert.Equal(t, "plugin-sql", sources[0].Owner)
	require.NoError(t, sources[0].Err)
	require.Len(t, sources[0].Suites, 1)
	assert.Equal(t, "sql_basic", sources[0].Suites[0].Name)
}

func TestDiscoverDirectUnresolvablePlugin(t *testing.T) {
	agent := startedAgent("Ambiguous", []string{"plugin-sql", "plugin-http"})
	target := &loader.LoadedTarget{Path: "mixed-project", Agents: []types.AgentSpec{agent.Spec}}

	sources := New(logging.NewNop()).Discover(target, []loader.StartedAgent{agent}, types.DirectPluginMode, Options{})
	require.Len(t, sources, 1)
	require.Error(t, sources[0].Err)
}

func TestDiscoverProjectOrder(t *testing.T) {
	sqlPlugin := newStaticPlugin("plugin-sql", newSuite("sql_basic"))
	httpPlugin := newStaticPlugin("plugin-http", newSuite("http_basic"))

	a0 := startedAgent("Alpha", []string{"plugin-sql"}, sqlPlugin)
	a0.Spec.Suites = []types.TestSuite{newSuite("alpha_e2e")}
	a1 := startedAgent("Beta", []string{"plugin-http"}, httpPlugin)

	target := &loader.LoadedTarget{Agents: []types.AgentSpec{a0.Spec, a1.Spec}}
	sources := New(logging.NewNop()).Discover(target, []loader.StartedAgent{a0, a1}, types.ProjectMode, Options{})

	// Project sources first in agent order, then plugin sources.
	require.Len(t, sources, 3)
	assert.Equal(t, SourceProject, sources[0].Kind)
	assert.Equal(t, "Alpha", sources[0].Owner)
	assert.Equal(t, SourcePlugin, sources[1].Kind)
	assert.Equal(t, "plugin-sql", sources[1].Owner)
	assert.Equal(t, 0, sources[1].AgentIndex)
	assert.Equal(t, SourcePlugin, sources[2].Kind)
	assert.Equal(t, "plugin-http", sources[2].Owner)
	assert.Equal(t, 1, sources[2].AgentIndex)
}

func TestDiscoverProjectSkipOptions(t *testing.T) {
	plugin := newStaticPlugin("plugin-sql", newSuite("sql_basic"))
	agent := startedAgent("Alpha", []string{"plugin-sql"}, plugin)
	agent.Spec.Suites = []types.TestSuite{newSuite("alpha_e2e")}
	target := &loader.LoadedTarget{Agents: []types.AgentSpec{agent.Spec}}
	agents := []loader.StartedAgent{agent}

	d := New(logging.NewNop())

	skipProject := d.Discover(target, agents, types.ProjectMode, Options{SkipProjectTests: true})
	require.Len(t, skipProject, 1)
	assert.Equal(t, SourcePlugin, skipProject[0].Kind)

	skipPlugins := d.Discover(target, agents, types.ProjectMode, Options{SkipPlugins: true})
	require.Len(t, skipPlugins, 1)
	assert.Equal(t, SourceProject, skipPlugins[0].Kind)

	both := d.Discover(target, agents, types.ProjectMode, Options{SkipPlugins: true, SkipProjectTests: true})
	assert.Empty(t, both)
}

func TestDiscoverProjectOnlyDirectlyDeclaredPlugins(t *testing.T) {
	// plugin-dep is in the runtime (a transitive dependency) but not
	// declared on the agent descriptor; it contributes no suites.
	declared := newStaticPlugin("plugin-sql", newSuite("sql_basic"))
	dep := newStaticPlugin("plugin-dep", newSuite("dep_suite"))
	agent := startedAgent("Alpha", []string{"plugin-sql"}, declared, dep)
	target := &loader.LoadedTarget{Agents: []types.AgentSpec{agent.Spec}}

	sources := New(logging.NewNop()).Discover(target, []loader.StartedAgent{agent}, types.ProjectMode, Options{})
	require.Len(t, sources, 1)
	assert.Equal(t, "plugin-sql", sources[0].Owner)
}

func TestDiscoverProjectMissingPluginBecomesErrSource(t *testing.T) {
	agent := startedAgent("Alpha", []string{"plugin-gone"})
	target := &loader.LoadedTarget{Agents: []types.AgentSpec{agent.Spec}}

	sources := New(logging.NewNop()).Discover(target, []loader.StartedAgent{agent}, types.ProjectMode, Options{})
	require.Len(t, sources, 1)
	require.Error(t, sources[0].Err)
	assert.Contains(t, sources[0].Err.Error(), "plugin-gone")
}
