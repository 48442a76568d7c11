package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"
)

// ComponentResult captures the outcome of the component-test category,
// which runs outside the harness runtime via the target's own test command.
type ComponentResult struct {
	Failed   bool
	Skipped  bool
	ExitCode int
	Output   string
	Duration time.Duration
}

// ComponentRunner shells out to the target's configured component-test
// command in the target directory and maps the exit code to pass/fail.
type ComponentRunner struct {
	log     *zap.SugaredLogger
	workDir string
	command []string
	timeout time.Duration
}

// NewComponentRunner creates a component runner. An empty command means the
// target has no component tests and the category is skipped.
func NewComponentRunner(log *zap.SugaredLogger, workDir string, command []string, timeout time.Duration) *ComponentRunner {
	return &ComponentRunner{log: log, workDir: workDir, command: command, timeout: timeout}
}

// Run executes the component-test command. A non-zero exit marks the
// category failed; failure to launch the command at all is a runtime error.
func (r *ComponentRunner) Run(ctx context.Context) (*ComponentResult, error) {
	if len(r.command) == 0 {
		r.log.Info("no component-test command configured, skipping component tests")
		return &ComponentResult{Skipped: true}, nil
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	r.log.Infow("running component tests", "command", r.command, "dir", r.workDir)

	cmd := exec.CommandContext(ctx, r.command[0], r.command[1:]...)
	cmd.Dir = r.workDir
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	start := time.Now()
	runErr := cmd.Run()
	result := &ComponentResult{
		Output:   output.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.Failed = true
			result.ExitCode = exitErr.ExitCode()
			r.log.Errorw("component tests failed", "exitCode", result.ExitCode)
			return result, nil
		}
		return nil, fmt.Errorf("running component tests: %w", runErr)
	}

	r.log.Infow("component tests passed", "duration", result.Duration)
	return result, nil
}
