package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/bootstrap"
	"github.com/agentstack/agent-acceptor/metrics"
	"github.com/agentstack/agent-acceptor/types"
)

// DefaultAgentStartDelay is the fixed pause between sequential agent
// starts. It bounds peak load while agents share model/embedding warm-up.
const DefaultAgentStartDelay = time.Second

// ErrNoAgentsStarted is returned when every agent in the target failed to
// start. Individual agent failures are logged and skipped; only a total
// failure is fatal.
var ErrNoAgentsStarted = errors.New("no agents started")

// StartedAgent pairs a descriptor with its live runtime handle.
type StartedAgent struct {
	Spec   types.AgentSpec
	Handle *types.RuntimeHandle
}

// Starter boots the agents of a loaded target, strictly sequentially.
type Starter struct {
	boot     *bootstrap.Bootstrapper
	reg      *Registry
	log      *zap.SugaredLogger
	delay    time.Duration
	testMode bool
}

// NewStarter creates a starter. delay <= 0 selects the default inter-agent
// delay.
func NewStarter(boot *bootstrap.Bootstrapper, reg *Registry, log *zap.SugaredLogger, delay time.Duration, testMode bool) *Starter {
	if delay <= 0 {
		delay = DefaultAgentStartDelay
	}
	return &Starter{boot: boot, reg: reg, log: log, delay: delay, testMode: testMode}
}

// StartAll starts every agent of the target in declaration order. In
// DirectPluginMode a single default-character descriptor wrapping the
// plugin under test is synthesized. A failure starting one agent is logged
// and that agent skipped; the run proceeds with the rest. Fatal only when
// zero agents start.
func (s *Starter) StartAll(ctx context.Context, target *LoadedTarget, mode types.ExecutionMode) ([]StartedAgent, error) {
	specs := target.Agents
	if mode == types.DirectPluginMode {
		switch {
		case target.Plugin != nil:
			specs = []types.AgentSpec{{
				Character: bootstrap.DefaultTestCharacter(target.Plugin.Name()),
				Plugins:   []string{target.Plugin.Name()},
			}}
		case len(target.Agents) == 1 && len(target.Agents[0].Plugins) == 1:
			// Project-shaped target forced into direct mode: run the sole
			// agent as declared; its single plugin is the plugin under test.
		default:
			return nil, errors.New("direct plugin mode requires a plugin target or a single agent declaring exactly one plugin")
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: target declares no agents", ErrNoAgentsStarted)
	}

	var started []StartedAgent
	for i, spec := range specs {
		if err := ctx.Err(); err != nil {
			s.log.Warnw("agent startup interrupted", "started", len(started))
			break
		}

		handle, err := s.startOne(ctx, spec)
		if err != nil {
			s.log.Errorw("failed to start agent, skipping",
				"agent", spec.Character.Name, "err", err)
			metrics.RecordErrorDetails("agent_start", err)
			continue
		}
		started = append(started, StartedAgent{Spec: spec, Handle: handle})

		// Deliberately sequential with a fixed pause; do not parallelize.
		if i < len(specs)-1 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
			}
		}
	}

	if len(started) == 0 {
		return nil, fmt.Errorf("%w: all %d agents failed to start", ErrNoAgentsStarted, len(specs))
	}
	return started, nil
}

func (s *Starter) startOne(ctx context.Context, spec types.AgentSpec) (*types.RuntimeHandle, error) {
	plugins, err := ResolvePlugins(s.reg, spec.Plugins, s.testMode)
	if err != nil {
		return nil, fmt.Errorf("resolving plugins: %w", err)
	}
	return s.boot.StartAgent(ctx, spec, plugins)
}

// StopAll stops every started agent, best-effort.
func (s *Starter) StopAll(ctx context.Context, agents []StartedAgent) {
	for _, a := range agents {
		if err := a.Handle.Stop(ctx); err != nil {
			s.log.Warnw("stopping agent", "agent", a.Spec.Character.Name, "err", err)
		}
	}
}
