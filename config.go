package acceptor

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/flags"
)

// TestType selects the category of tests to run.
type TestType string

const (
	TestTypeComponent TestType = "component"
	TestTypeE2E       TestType = "e2e"
	TestTypeAll       TestType = "all"
)

// Config holds the harness configuration for one invocation.
type Config struct {
	TargetPath         string        // Project or plugin target to load
	TestType           TestType      // Category: component, e2e, or all
	Filter             string        // Case-sensitive suite name substring filter
	SkipPlugins        bool          // Skip plugin suites in project mode
	SkipProjectTests   bool          // Skip project-level suites
	PreferredPort      int           // First port probed for the runtime server
	ExternalDBURL      string        // Replaces the scratch directory when set
	PluginMode         bool          // Explicit direct-plugin mode override
	AllowNameHeuristic bool          // Deprecated character-name mode detection
	AgentStartDelay    time.Duration // Fixed delay between sequential agent starts
	ComponentCommand   []string      // argv for the component-test category
	ComponentTimeout   time.Duration
	Log                *zap.SugaredLogger
}

// NewConfig creates a Config from the cli context.
func NewConfig(ctx *cli.Context, log *zap.SugaredLogger) (*Config, error) {
	if err := flags.CheckRequired(ctx); err != nil {
		return nil, fmt.Errorf("missing required flags: %w", err)
	}

	testType := TestType(ctx.String(flags.TestType.Name))
	switch testType {
	case TestTypeComponent, TestTypeE2E, TestTypeAll:
	default:
		return nil, fmt.Errorf("invalid test type %q, must be one of: %s, %s, %s",
			testType, TestTypeComponent, TestTypeE2E, TestTypeAll)
	}

	port := ctx.Int(flags.Port.Name)
	if port <= 0 || port > 65535 {
		return nil, fmt.Errorf("invalid port %d", port)
	}

	return &Config{
		TargetPath:         ctx.String(flags.Target.Name),
		TestType:           testType,
		Filter:             ctx.String(flags.Filter.Name),
		SkipPlugins:        ctx.Bool(flags.SkipPlugins.Name),
		SkipProjectTests:   ctx.Bool(flags.SkipProjectTests.Name),
		PreferredPort:      port,
		ExternalDBURL:      ctx.String(flags.DatabaseURL.Name),
		PluginMode:         ctx.Bool(flags.PluginMode.Name),
		AllowNameHeuristic: ctx.Bool(flags.AllowNameHeuristic.Name),
		AgentStartDelay:    ctx.Duration(flags.AgentStartDelay.Name),
		ComponentCommand:   ctx.StringSlice(flags.ComponentCommand.Name),
		ComponentTimeout:   ctx.Duration(flags.ComponentTimeout.Name),
		Log:                log,
	}, nil
}
