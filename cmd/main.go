package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/honeycombio/otel-config-go/otelconfig"
	"github.com/urfave/cli/v2"

	acceptor "github.com/agentstack/agent-acceptor"
	"github.com/agentstack/agent-acceptor/cleanup"
	"github.com/agentstack/agent-acceptor/exitcodes"
	"github.com/agentstack/agent-acceptor/flags"
	"github.com/agentstack/agent-acceptor/logging"
	"github.com/agentstack/agent-acceptor/service"
)

var (
	Version   = "v0.1.0"
	GitCommit = ""
	GitDate   = ""
)

func main() {
	app := cli.NewApp()
	app.Version = fmt.Sprintf("%s-%s-%s", Version, GitCommit, GitDate)
	app.Name = "agent-acceptor"
	app.Usage = "Agent Project Acceptance Tester"
	app.Description = "agent-acceptor runs a project's or plugin's test suites against live agent runtimes"
	app.Flags = flags.Flags
	app.Action = run
	app.ExitErrHandler = func(c *cli.Context, err error) {
		var exitErr cli.ExitCoder
		if errors.As(err, &exitErr) {
			// Use the exit code from the ExitCoder
			cli.HandleExitCoder(exitErr)
		} else if err != nil {
			// Check for typed runtime errors
			if acceptor.IsRuntimeError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.RuntimeErr))
			} else if acceptor.IsTestFailureError(err) {
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			} else {
				// For other unspecified errors, default to exit code 1
				cli.HandleExitCoder(cli.Exit(err.Error(), exitcodes.TestFailure))
			}
		}
	}

	// Start telemetry
	otelShutdown, err := otelconfig.ConfigureOpenTelemetry(
		otelconfig.WithServiceName(app.Name),
		otelconfig.WithServiceVersion(app.Version),
	)
	if err != nil {
		log.Fatalf("failed to set up open telemetry: %v", err)
	}
	defer otelShutdown()

	if err := app.Run(os.Args); err != nil {
		log.Fatalf("application failed: %v", err)
	}
}

func run(ctx *cli.Context) error {
	logger, err := logging.New(ctx.String(flags.LogLevel.Name), ctx.String(flags.LogFormat.Name))
	if err != nil {
		return acceptor.NewRuntimeError(err)
	}
	defer logger.Sync() //nolint:errcheck

	cfg, err := acceptor.NewConfig(ctx, logger)
	if err != nil {
		// Wrap in RuntimeError to signal this should exit with code 2
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create config: %w", err))
	}

	// Observability endpoints for the harness process itself.
	svc := service.New(logger)
	svc.Start(ctx.Context)
	defer svc.Shutdown()

	// Signal handling: one process-wide dispatcher owns the cleanup stack
	// and exits with 128+signum after running it.
	dispatcher := cleanup.Default(logger)
	dispatcher.Install()

	harness, err := acceptor.New(cfg, dispatcher)
	if err != nil {
		return acceptor.NewRuntimeError(fmt.Errorf("failed to create harness: %w", err))
	}

	return harness.Run(ctx.Context)
}
