package loader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstack/agent-acceptor/types"
)

func TestRegisterPlugin(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "plugin-sql", PluginVersion: "1.2.3"}))

	p, ok := reg.Plugin("plugin-sql")
	require.True(t, ok)
	assert.Equal(t, "plugin-sql", p.Name())

	_, ok = reg.Plugin("plugin-missing")
	assert.False(t, ok)
}

func TestRegisterPluginRejectsDuplicates(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "plugin-sql"}))
	err := reg.RegisterPlugin(&types.StaticPlugin{PluginName: "plugin-sql"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")
}

func TestRegisterPluginValidatesVersion(t *testing.T) {
	reg := NewRegistry()

	// Both bare and v-prefixed semver are accepted; garbage is not.
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "a", PluginVersion: "1.0.0"}))
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "b", PluginVersion: "v2.1.0"}))
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "c"}), "empty version is allowed")
	require.Error(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "d", PluginVersion: "latest"}))
}

func TestRegisterPluginRequiresName(t *testing.T) {
	reg := NewRegistry()
	require.Error(t, reg.RegisterPlugin(&types.StaticPlugin{}))
	require.Error(t, reg.RegisterPlugin(nil))
}

func TestRegisterProject(t *testing.T) {
	reg := NewRegistry()
	proj := &Project{Name: "my-project", Agents: []types.AgentSpec{
		{Character: types.Character{Name: "Eliza"}},
	}}
	require.NoError(t, reg.RegisterProject(proj))

	got, ok := reg.Project("my-project")
	require.True(t, ok)
	assert.Len(t, got.Agents, 1)

	require.Error(t, reg.RegisterProject(proj), "duplicate project")
	require.Error(t, reg.RegisterProject(&Project{}), "unnamed project")
}

func TestPluginNamesSorted(t *testing.T) {
	reg := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: name}))
	}
	assert.Equal(t, []string{"alpha", "mid", "zeta"}, reg.PluginNames())
}
