// Package bootstrap configures and starts the runtime server for one run,
// and exposes the agent-start hook the loader drives.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/metrics"
	"github.com/agentstack/agent-acceptor/server"
	"github.com/agentstack/agent-acceptor/types"
)

// InitializationError marks a fatal storage/schema setup failure. No retry.
type InitializationError struct {
	Err error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("initialization error: %v", e.Err)
}

func (e *InitializationError) Unwrap() error { return e.Err }

// IsInitializationError checks if the error is or wraps an InitializationError.
func IsInitializationError(err error) bool {
	var initErr *InitializationError
	return err != nil && errors.As(err, &initErr)
}

// Bootstrapper wraps a runtime server with the harness lifecycle:
// Initialize -> Start -> (agents) -> Stop.
type Bootstrapper struct {
	srv      server.Server
	log      *zap.SugaredLogger
	testMode bool

	initialized bool
	started     bool
}

// New creates a bootstrapper around the given server.
func New(srv server.Server, log *zap.SugaredLogger, testMode bool) *Bootstrapper {
	return &Bootstrapper{srv: srv, log: log, testMode: testMode}
}

// Initialize points storage at the external database when supplied, else at
// the scratch directory. Must precede Start.
func (b *Bootstrapper) Initialize(ctx context.Context, scratchDir string, externalDBURL string) error {
	if b.initialized {
		return &InitializationError{Err: errors.New("already initialized")}
	}
	cfg := server.Config{
		DataDir:       scratchDir,
		ExternalDBURL: externalDBURL,
	}
	if err := b.srv.Initialize(ctx, cfg); err != nil {
		return &InitializationError{Err: err}
	}
	b.initialized = true
	b.log.Debugw("runtime storage initialized",
		"scratchDir", scratchDir, "externalDB", externalDBURL != "")
	return nil
}

// Start injects the harness agent-start implementation and the character
// resolution helpers into the server, then binds the port and begins
// serving. Agents spawned through the server from here on integrate with
// test instrumentation.
func (b *Bootstrapper) Start(ctx context.Context, port int) error {
	if !b.initialized {
		return errors.New("bootstrapper must be initialized before start")
	}
	if b.started {
		return errors.New("bootstrapper already started")
	}

	b.srv.InjectAgentStart(b.startAgent)
	b.srv.InjectCharacterResolvers(server.CharacterResolvers{
		LoadCharacterTryPath: LoadCharacterTryPath,
		JSONToCharacter:      JSONToCharacter,
	})

	if err := b.srv.Start(ctx, port); err != nil {
		return fmt.Errorf("starting runtime server: %w", err)
	}
	b.started = true
	return nil
}

// Stop releases the listening socket. Idempotent.
func (b *Bootstrapper) Stop(ctx context.Context) error {
	if !b.started {
		return nil
	}
	b.started = false
	return b.srv.Stop(ctx)
}

// StartAgent starts one agent through the server using the injected
// implementation.
func (b *Bootstrapper) StartAgent(ctx context.Context, spec types.AgentSpec, plugins []types.Plugin) (*types.RuntimeHandle, error) {
	if !b.started {
		return nil, errors.New("bootstrapper not started")
	}
	return b.srv.StartAgent(ctx, spec.Character, spec.Init, plugins, server.StartOptions{
		TestMode: b.testMode,
	})
}

// startAgent is the harness agent-start implementation injected into the
// server: build the handle, run plugin init hooks in resolution order, run
// the agent init hook, then register with the server's agent registry.
func (b *Bootstrapper) startAgent(ctx context.Context, character types.Character, init types.InitFunc, plugins []types.Plugin, opts server.StartOptions) (*types.RuntimeHandle, error) {
	handle := types.NewRuntimeHandle(character, plugins, nil)

	for _, p := range plugins {
		if err := p.Init(ctx, handle); err != nil {
			return nil, fmt.Errorf("initializing plugin %s: %w", p.Name(), err)
		}
	}
	if init != nil {
		if err := init(ctx, handle); err != nil {
			return nil, fmt.Errorf("agent init hook: %w", err)
		}
	}

	if err := b.srv.RegisterAgent(handle); err != nil {
		return nil, fmt.Errorf("registering agent: %w", err)
	}

	b.log.Infow("agent started",
		"agent", character.Name, "id", handle.ID, "plugins", len(plugins), "testMode", opts.TestMode)
	metrics.RecordAgentStarted(character.Name)
	return handle, nil
}
