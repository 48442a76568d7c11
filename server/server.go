// Package server defines the runtime server the harness drives, plus a
// local reference implementation. The harness owns the server lifecycle but
// not its internals: agent model invocation and memory storage live behind
// this boundary.
package server

import (
	"context"

	"github.com/agentstack/agent-acceptor/types"
)

// Config points the server's storage at either the run's scratch directory
// or an external database.
type Config struct {
	// DataDir is the scratch directory backing this run's storage.
	DataDir string
	// ExternalDBURL, when non-empty, replaces DataDir as the storage target.
	ExternalDBURL string
}

// StartOptions carries per-agent start options from the harness.
type StartOptions struct {
	// TestMode enables test-only plugin dependencies and instrumentation.
	TestMode bool
}

// StartAgentFunc starts an agent on the server and returns its live handle.
// The harness injects its own implementation before the server binds, so
// agents spawned through the server integrate with test instrumentation.
type StartAgentFunc func(ctx context.Context, character types.Character, init types.InitFunc, plugins []types.Plugin, opts StartOptions) (*types.RuntimeHandle, error)

// CharacterResolvers are the character-resolution helpers the harness
// injects alongside the agent-start implementation.
type CharacterResolvers struct {
	LoadCharacterTryPath func(path string) (*types.Character, error)
	JSONToCharacter      func(data []byte) (*types.Character, error)
}

// Server is the runtime server collaborator.
type Server interface {
	// Initialize points storage at the configured location and performs
	// schema setup. Must precede Start. Failure is fatal; no retry.
	Initialize(ctx context.Context, cfg Config) error

	// Start binds the listening socket and begins serving.
	Start(ctx context.Context, port int) error

	// Stop releases the listening socket. Idempotent.
	Stop(ctx context.Context) error

	// RegisterAgent adds a started agent to the server's agent registry.
	RegisterAgent(handle *types.RuntimeHandle) error

	// Agents returns the registered agents in registration order.
	Agents() []*types.RuntimeHandle

	// InjectAgentStart installs the harness agent-start implementation.
	InjectAgentStart(fn StartAgentFunc)

	// InjectCharacterResolvers installs the character-resolution helpers.
	InjectCharacterResolvers(r CharacterResolvers)

	// StartAgent runs the injected (or default) agent-start implementation.
	StartAgent(ctx context.Context, character types.Character, init types.InitFunc, plugins []types.Plugin, opts StartOptions) (*types.RuntimeHandle, error)
}
