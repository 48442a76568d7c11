package flags

import (
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
)

const EnvVarPrefix = "AGENT_ACCEPTOR"

func prefixEnvVars(name string) []string {
	return []string{EnvVarPrefix + "_" + name}
}

var (
	Target = &cli.StringFlag{
		Name:     "target",
		Value:    "",
		Required: true,
		EnvVars:  prefixEnvVars("TARGET"),
		Usage:    "Project or plugin target: a registered module name, a manifest file, or a directory containing acceptor.yaml",
	}
	TestType = &cli.StringFlag{
		Name:    "type",
		Value:   "all",
		EnvVars: prefixEnvVars("TYPE"),
		Usage:   "Test category to run: 'component', 'e2e' or 'all'",
	}
	Filter = &cli.StringFlag{
		Name:    "filter",
		Value:   "",
		EnvVars: prefixEnvVars("FILTER"),
		Usage:   "Only execute suites whose name contains this case-sensitive substring",
	}
	SkipPlugins = &cli.BoolFlag{
		Name:    "skip-plugins",
		Value:   false,
		EnvVars: prefixEnvVars("SKIP_PLUGINS"),
		Usage:   "Skip plugin suites (ignored when testing a plugin directly)",
	}
	SkipProjectTests = &cli.BoolFlag{
		Name:    "skip-project-tests",
		Value:   false,
		EnvVars: prefixEnvVars("SKIP_PROJECT_TESTS"),
		Usage:   "Skip project-level suites",
	}
	Port = &cli.IntFlag{
		Name:    "port",
		Value:   3000,
		EnvVars: prefixEnvVars("PORT"),
		Usage:   "Preferred server port; the first free port at or above it is used",
	}
	DatabaseURL = &cli.StringFlag{
		Name:    "db-url",
		Value:   "",
		EnvVars: prefixEnvVars("DB_URL"),
		Usage:   "External database connection string; replaces the scratch directory when set",
	}
	PluginMode = &cli.BoolFlag{
		Name:    "plugin-mode",
		Value:   false,
		EnvVars: prefixEnvVars("PLUGIN_MODE"),
		Usage:   "Force direct-plugin test mode for the loaded target",
	}
	AllowNameHeuristic = &cli.BoolFlag{
		Name:    "allow-name-heuristic",
		Value:   false,
		EnvVars: prefixEnvVars("ALLOW_NAME_HEURISTIC"),
		Usage:   "DEPRECATED: detect direct-plugin mode from the character name; prefer --plugin-mode",
	}
	AgentStartDelay = &cli.DurationFlag{
		Name:    "agent-start-delay",
		Value:   time.Second,
		EnvVars: prefixEnvVars("AGENT_START_DELAY"),
		Usage:   "Fixed delay between sequential agent starts",
	}
	ComponentCommand = &cli.StringSliceFlag{
		Name:    "component-command",
		EnvVars: prefixEnvVars("COMPONENT_COMMAND"),
		Usage:   "Command (argv) to run component tests with; omit to skip component tests",
	}
	ComponentTimeout = &cli.DurationFlag{
		Name:    "component-timeout",
		Value:   10 * time.Minute,
		EnvVars: prefixEnvVars("COMPONENT_TIMEOUT"),
		Usage:   "Timeout for the component-test command",
	}
	LogLevel = &cli.StringFlag{
		Name:    "log.level",
		Value:   "info",
		EnvVars: prefixEnvVars("LOG_LEVEL"),
		Usage:   "Log level: debug, info, warn, error",
	}
	LogFormat = &cli.StringFlag{
		Name:    "log.format",
		Value:   "console",
		EnvVars: prefixEnvVars("LOG_FORMAT"),
		Usage:   "Log format: console or json",
	}
)

var requiredFlags = []cli.Flag{
	Target,
}

var optionalFlags = []cli.Flag{
	TestType,
	Filter,
	SkipPlugins,
	SkipProjectTests,
	Port,
	DatabaseURL,
	PluginMode,
	AllowNameHeuristic,
	AgentStartDelay,
	ComponentCommand,
	ComponentTimeout,
	LogLevel,
	LogFormat,
}

var Flags []cli.Flag

func init() {
	Flags = append(requiredFlags, optionalFlags...)
}

func CheckRequired(ctx *cli.Context) error {
	for _, f := range requiredFlags {
		if !ctx.IsSet(f.Names()[0]) {
			return fmt.Errorf("flag %s is required", f.Names()[0])
		}
	}
	return nil
}
