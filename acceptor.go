// Package acceptor coordinates one harness run: resource allocation,
// runtime bootstrap, agent startup, suite discovery, test execution, and
// cleanup. Cleanup runs exactly once whether the run completes, errors, or
// is interrupted by a termination signal.
package acceptor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/allocator"
	"github.com/agentstack/agent-acceptor/bootstrap"
	"github.com/agentstack/agent-acceptor/cleanup"
	"github.com/agentstack/agent-acceptor/discovery"
	"github.com/agentstack/agent-acceptor/loader"
	"github.com/agentstack/agent-acceptor/metrics"
	"github.com/agentstack/agent-acceptor/runner"
	"github.com/agentstack/agent-acceptor/server"
)

// TestModeEnvVar is set for the duration of a run so plugins and child
// processes can detect they are under test. Its prior value is restored
// during cleanup.
const TestModeEnvVar = "AGENT_ACCEPTOR_TEST_MODE"

// CategoryResult is the per-category outcome surfaced to the CLI layer.
type CategoryResult struct {
	Failed bool
}

// Harness executes test runs against a target.
type Harness struct {
	config     *Config
	log        *zap.SugaredLogger
	registry   *loader.Registry
	dispatcher *cleanup.Dispatcher
	alloc      *allocator.Allocator
	newServer  func() server.Server

	lastResult *runner.Result
}

// Option customizes a Harness.
type Option func(*Harness)

// WithServerFactory substitutes the runtime server implementation.
func WithServerFactory(fn func() server.Server) Option {
	return func(h *Harness) { h.newServer = fn }
}

// WithRegistry substitutes the module registry.
func WithRegistry(reg *loader.Registry) Option {
	return func(h *Harness) { h.registry = reg }
}

// New creates a Harness.
func New(config *Config, dispatcher *cleanup.Dispatcher, opts ...Option) (*Harness, error) {
	if config == nil {
		return nil, errors.New("config is required")
	}
	if dispatcher == nil {
		return nil, errors.New("cleanup dispatcher is required")
	}
	log := config.Log
	if log == nil {
		return nil, errors.New("logger is required")
	}

	h := &Harness{
		config:     config,
		log:        log,
		registry:   loader.DefaultRegistry(),
		dispatcher: dispatcher,
		alloc:      allocator.New(log),
		newServer:  func() server.Server { return server.NewLocal(log) },
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Run executes the configured test categories: component tests first, then
// e2e tests. It returns a TestFailureError when any test failed and a
// RuntimeError when the harness itself could not run.
func (h *Harness) Run(ctx context.Context) error {
	var failed []string

	if h.config.TestType == TestTypeComponent || h.config.TestType == TestTypeAll {
		res, err := h.RunComponentTests(ctx)
		if err != nil {
			return NewRuntimeError(err)
		}
		if res.Failed {
			failed = append(failed, string(TestTypeComponent))
		}
	}

	if h.config.TestType == TestTypeE2E || h.config.TestType == TestTypeAll {
		res, err := h.RunE2ETests(ctx)
		if err != nil {
			return NewRuntimeError(err)
		}
		if res.Failed {
			failed = append(failed, string(TestTypeE2E))
		}
	}

	if len(failed) > 0 {
		msg := fmt.Sprintf("%s tests failed", strings.Join(failed, " and "))
		if h.lastResult != nil {
			msg = fmt.Sprintf("%s (%s)", msg, h.lastResult.String())
		}
		return NewTestFailureError(msg)
	}
	return nil
}

// RunComponentTests runs the component-test category for the target.
func (h *Harness) RunComponentTests(ctx context.Context) (*CategoryResult, error) {
	workDir := h.config.TargetPath
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		workDir = "."
	}
	cr := runner.NewComponentRunner(h.log, workDir, h.config.ComponentCommand, h.config.ComponentTimeout)
	res, err := cr.Run(ctx)
	if err != nil {
		return nil, err
	}
	if len(res.Output) > 0 && res.Failed {
		fmt.Print(res.Output)
	}
	return &CategoryResult{Failed: res.Failed}, nil
}

// RunE2ETests provisions an isolated runtime, loads the target, starts its
// agents sequentially, and executes the eligible suites.
func (h *Harness) RunE2ETests(ctx context.Context) (*CategoryResult, error) {
	ctx, cancel := h.dispatcher.WithCancel(ctx)
	defer cancel()

	// Acquire the run's resource lease.
	baseName := sanitizeBaseName(filepath.Base(h.config.TargetPath))
	lease, err := h.alloc.Allocate(h.config.PreferredPort, baseName)
	if err != nil {
		metrics.RecordErrorDetails("resource_allocation", err)
		return nil, fmt.Errorf("allocating run resources: %w", err)
	}
	h.log.Infow("resource lease acquired", "port", lease.Port, "scratchDir", lease.ScratchDir)

	// Flip the process-global test-mode toggle, remembering its prior value.
	priorTestMode, hadTestMode := os.LookupEnv(TestModeEnvVar)
	os.Setenv(TestModeEnvVar, "true") //nolint:errcheck

	// One cleanup callback covers normal completion, error returns, and the
	// signal path; the handle guarantees it runs exactly once.
	cleanupHandle := h.dispatcher.Register("release-run-resources", func() {
		if err := h.alloc.Release(lease); err != nil {
			h.log.Warnw("cleanup: releasing resource lease", "err", err)
		}
		if hadTestMode {
			os.Setenv(TestModeEnvVar, priorTestMode) //nolint:errcheck
		} else {
			os.Unsetenv(TestModeEnvVar) //nolint:errcheck
		}
	})
	defer cleanupHandle.Run()

	// Bootstrap the runtime server.
	boot := bootstrap.New(h.newServer(), h.log, true)
	if err := boot.Initialize(ctx, lease.ScratchDir, h.config.ExternalDBURL); err != nil {
		metrics.RecordErrorDetails("initialization", err)
		return nil, err
	}
	if err := boot.Start(ctx, lease.Port); err != nil {
		return nil, err
	}
	defer func() {
		if stopErr := boot.Stop(context.WithoutCancel(ctx)); stopErr != nil {
			h.log.Warnw("stopping runtime server", "err", stopErr)
		}
	}()

	// Resolve the target and start its agents.
	target, err := loader.New(h.registry, h.log).Load(h.config.TargetPath)
	if err != nil {
		return nil, fmt.Errorf("loading target: %w", err)
	}

	disc := discovery.New(h.log)
	disc.AllowNameHeuristic = h.config.AllowNameHeuristic
	mode := disc.DetermineMode(target, h.config.PluginMode)
	h.log.Infow("execution mode determined", "mode", mode, "target", target.Path)

	starter := loader.NewStarter(boot, h.registry, h.log, h.config.AgentStartDelay, true)
	started, err := starter.StartAll(ctx, target, mode)
	if err != nil {
		return nil, err
	}
	defer starter.StopAll(context.WithoutCancel(ctx), started)

	// Discover and execute.
	sources := disc.Discover(target, started, mode, discovery.Options{
		SkipPlugins:      h.config.SkipPlugins,
		SkipProjectTests: h.config.SkipProjectTests,
	})
	runResult := runner.NewExecutor(h.log).Run(ctx, started, sources, runner.Options{
		Filter: h.config.Filter,
		Mode:   mode,
	})
	h.lastResult = runResult

	h.printResultsTable(runResult)
	fmt.Println(runResult.String())

	return &CategoryResult{Failed: runResult.Stats.HasFailures()}, nil
}

// sanitizeBaseName keeps scratch directory names filesystem-friendly.
func sanitizeBaseName(name string) string {
	name = strings.TrimSuffix(name, filepath.Ext(name))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		default:
			return '-'
		}
	}, name)
	if name == "" {
		name = "run"
	}
	return name
}
