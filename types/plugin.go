package types

import "context"

// Plugin is a loadable agent capability module. Suites returning an error
// models a plugin whose test enumeration itself fails; the executor counts
// that as a single failure without aborting the remaining plugins.
type Plugin interface {
	Name() string
	Version() string
	Dependencies() []string
	TestDependencies() []string
	Suites() ([]TestSuite, error)
	Init(ctx context.Context, runtime *RuntimeHandle) error
}

// StaticPlugin is the common Plugin implementation: a fixed descriptor with
// declared dependencies and suites.
type StaticPlugin struct {
	PluginName    string
	PluginVersion string
	Deps          []string
	TestDeps      []string
	TestSuites    []TestSuite
	InitFunc      InitFunc
}

var _ Plugin = (*StaticPlugin)(nil)

func (p *StaticPlugin) Name() string               { return p.PluginName }
func (p *StaticPlugin) Version() string            { return p.PluginVersion }
func (p *StaticPlugin) Dependencies() []string     { return p.Deps }
func (p *StaticPlugin) TestDependencies() []string { return p.TestDeps }

func (p *StaticPlugin) Suites() ([]TestSuite, error) {
	return p.TestSuites, nil
}

func (p *StaticPlugin) Init(ctx context.Context, runtime *RuntimeHandle) error {
	if p.InitFunc == nil {
		return nil
	}
	return p.InitFunc(ctx, runtime)
}
