// Package discovery determines the execution mode for a loaded target and
// enumerates the suite sources eligible to run.
package discovery

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/loader"
	"github.com/agentstack/agent-acceptor/types"
)

// SourceKind says where a suite source came from.
type SourceKind string

const (
	SourceProject SourceKind = "project"
	SourcePlugin  SourceKind = "plugin"
)

// SuiteSource is one eligible provider of suites: an agent descriptor's own
// suites, or one directly-declared plugin's suites. A non-nil Err means the
// source's suites could not be enumerated; the executor counts that as one
// failure and moves on.
type SuiteSource struct {
	Kind       SourceKind
	Owner      string
	AgentIndex int
	Suites     []types.TestSuite
	Err        error
}

// Options narrows which sources are eligible.
type Options struct {
	SkipPlugins      bool
	SkipProjectTests bool
}

// Discoverer enumerates eligible suite sources.
type Discoverer struct {
	log *zap.SugaredLogger

	// AllowNameHeuristic enables the deprecated character-name fallback for
	// detecting a direct plugin test. Prefer the explicit mode flag.
	AllowNameHeuristic bool
}

// New creates a discoverer.
func New(log *zap.SugaredLogger) *Discoverer {
	return &Discoverer{log: log}
}

// DetermineMode picks the execution mode: DirectPluginMode iff the target
// is a plugin or the explicit override is set. The character-name heuristic
// is consulted only when enabled, and only as a fallback.
func (d *Discoverer) DetermineMode(target *loader.LoadedTarget, forcePluginMode bool) types.ExecutionMode {
	if target.IsPlugin || forcePluginMode {
		return types.DirectPluginMode
	}
	if d.AllowNameHeuristic && d.nameHeuristicMatches(target) {
		d.log.Warnw("direct plugin mode selected via deprecated character-name heuristic; " +
			"pass the explicit mode flag instead")
		return types.DirectPluginMode
	}
	return types.ProjectMode
}

// nameHeuristicMatches reproduces the legacy detection: exactly one agent,
// exactly one declared plugin, and the plugin name appearing inside the
// character name. Known to false-positive on coincidentally-named
// characters, hence deprecated.
func (d *Discoverer) nameHeuristicMatches(target *loader.LoadedTarget) bool {
	if len(target.Agents) != 1 {
		return false
	}
	agent := target.Agents[0]
	if len(agent.Plugins) != 1 {
		return false
	}
	return strings.Contains(strings.ToLower(agent.Character.Name), strings.ToLower(agent.Plugins[0]))
}

// MatchesFilter reports whether a suite executes under the given filter: an
// empty filter matches everything; otherwise the filter must be a
// case-sensitive substring of the suite name. Filtering affects only
// execution, never discovery.
func MatchesFilter(suiteName, filter string) bool {
	return filter == "" || strings.Contains(suiteName, filter)
}

// Discover enumerates eligible suite sources in deterministic order:
// project sources first (agent declaration order), then plugin sources
// (agent order, then each agent's declared plugin order).
//
// In DirectPluginMode the sole eligible source is the plugin under test's
// own suites; project-level suites are unconditionally skipped, and
// SkipPlugins has no effect on the plugin under test.
func (d *Discoverer) Discover(target *loader.LoadedTarget, agents []loader.StartedAgent, mode types.ExecutionMode, opts Options) []SuiteSource {
	if mode == types.DirectPluginMode {
		return d.discoverDirect(target, agents)
	}
	return d.discoverProject(agents, opts)
}

func (d *Discoverer) discoverDirect(target *loader.LoadedTarget, agents []loader.StartedAgent) []SuiteSource {
	for _, a := range agents {
		if len(a.Spec.Suites) > 0 {
			d.log.Infow("skipping project-level suites in direct plugin mode",
				"agent", a.Spec.Character.Name, "suites", len(a.Spec.Suites))
		}
	}

	p := target.Plugin
	if p == nil && len(agents) == 1 && len(agents[0].Spec.Plugins) == 1 {
		// Project-shaped target forced into direct mode: the sole agent's
		// single declared plugin is the plugin under test.
		p = agents[0].Handle.Plugin(agents[0].Spec.Plugins[0])
	}
	if p == nil {
		return []SuiteSource{{
			Kind:  SourcePlugin,
			Owner: target.Path,
			Err:   errors.New("plugin under test could not be resolved"),
		}}
	}
	suites, err := p.Suites()
	if err != nil {
		err = fmt.Errorf("enumerating suites of plugin %s: %w", p.Name(), err)
	}
	return []SuiteSource{{
		Kind:       SourcePlugin,
		Owner:      p.Name(),
		AgentIndex: 0,
		Suites:     suites,
		Err:        err,
	}}
}

func (d *Discoverer) discoverProject(agents []loader.StartedAgent, opts Options) []SuiteSource {
	var sources []SuiteSource

	if opts.SkipProjectTests {
		d.log.Info("project-level suites disabled for this run")
	} else {
		for i, a := range agents {
			if len(a.Spec.Suites) == 0 {
				continue
			}
			sources = append(sources, SuiteSource{
				Kind:       SourceProject,
				Owner:      a.Spec.Character.Name,
				AgentIndex: i,
				Suites:     a.Spec.Suites,
			})
		}
	}

	if opts.SkipPlugins {
		d.log.Info("plugin suites disabled for this run")
		return sources
	}

	// Only plugins directly declared on the agent descriptor contribute
	// suites; transitively-resolved dependency plugins never do.
	for i, a := range agents {
		for _, name := range a.Spec.Plugins {
			p := a.Handle.Plugin(name)
			if p == nil {
				sources = append(sources, SuiteSource{
					Kind:       SourcePlugin,
					Owner:      name,
					AgentIndex: i,
					Err:        fmt.Errorf("declared plugin %s missing from runtime", name),
				})
				continue
			}
			suites, err := p.Suites()
			if err != nil {
				err = fmt.Errorf("enumerating suites of plugin %s: %w", name, err)
			}
			sources = append(sources, SuiteSource{
				Kind:       SourcePlugin,
				Owner:      name,
				AgentIndex: i,
				Suites:     suites,
				Err:        err,
			})
		}
	}
	return sources
}
