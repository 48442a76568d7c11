package loader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentstack/agent-acceptor/logging"
	"github.com/agentstack/agent-acceptor/types"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadRegisteredPlugin(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "plugin-sql"}))

	target, err := New(reg, logging.NewNop()).Load("plugin-sql")
	require.NoError(t, err)
	assert.True(t, target.IsPlugin)
	assert.Equal(t, "plugin-sql", target.Plugin.Name())
}

func TestLoadRegisteredProject(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterProject(&Project{
		Name:   "my-project",
		Agents: []types.AgentSpec{{Character: types.Character{Name: "Eliza"}}},
	}))

	target, err := New(reg, logging.NewNop()).Load("my-project")
	require.NoError(t, err)
	assert.False(t, target.IsPlugin)
	require.Len(t, target.Agents, 1)
	assert.Equal(t, "Eliza", target.Agents[0].Character.Name)
}

func TestLoadPluginManifest(t *testing.T) {
	reg := NewRegistry()
	require.NoError(t, reg.RegisterPlugin(&types.StaticPlugin{PluginName: "plugin-sql"}))

	dir := t.TempDir()
	manifest := filepath.Join(dir, "acceptor.yaml")
	writeFile(t, manifest, "kind: plugin\nplugin: plugin-sql\n")

	// Both the file and the directory containing it resolve.
	for _, path := range []string{manifest, dir} {
		target, err := New(reg, logging.NewNop()).Load(path)
		require.NoError(t, err)
		assert.True(t, target.IsPlugin)
		assert.Equal(t, "plugin-sql", target.Plugin.Name())
	}
}

func TestLoadPluginManifestUnregistered(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acceptor.yaml"), "kind: plugin\nplugin: plugin-ghost\n")

	_, err := New(NewRegistry(), logging.NewNop()).Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}

func TestLoadProjectManifestInlineCharacter(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acceptor.yaml"), `kind: project
agents:
  - characterDef:
      name: Eliza
      plugins: [plugin-sql]
`)

	target, err := New(NewRegistry(), logging.NewNop()).Load(dir)
	require.NoError(t, err)
	require.Len(t, target.Agents, 1)
	assert.Equal(t, "Eliza", target.Agents[0].Character.Name)
	// With no explicit plugin list, the character's plugins are used.
	assert.Equal(t, []string{"plugin-sql"}, target.Agents[0].Plugins)
}

func TestLoadProjectManifestCharacterFile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "eliza.json"), `{"name": "Eliza", "plugins": ["plugin-sql"]}`)
	writeFile(t, filepath.Join(dir, "acceptor.yaml"), `kind: project
agents:
  - character: eliza.json
    plugins: [plugin-http]
`)

	target, err := New(NewRegistry(), logging.NewNop()).Load(dir)
	require.NoError(t, err)
	require.Len(t, target.Agents, 1)
	assert.Equal(t, "Eliza", target.Agents[0].Character.Name)
	// An explicit plugin list overrides the character's.
	assert.Equal(t, []string{"plugin-http"}, target.Agents[0].Plugins)
}

func TestLoadProjectManifestWithoutAgents(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acceptor.yaml"), "kind: project\n")

	_, err := New(NewRegistry(), logging.NewNop()).Load(dir)
	require.Error(t, err)
}

func TestLoadUnknownKind(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "acceptor.yaml"), "kind: gadget\n")

	_, err := New(NewRegistry(), logging.NewNop()).Load(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown kind")
}

func TestLoadMissingTarget(t *testing.T) {
	_, err := New(NewRegistry(), logging.NewNop()).Load(filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	_, err = New(NewRegistry(), logging.NewNop()).Load("")
	require.Error(t, err)
}
