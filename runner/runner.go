// Package runner executes eligible test suites against live agent runtimes
// and aggregates the results.
package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/acarl005/stripansi"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/agentstack/agent-acceptor/discovery"
	"github.com/agentstack/agent-acceptor/loader"
	"github.com/agentstack/agent-acceptor/metrics"
	"github.com/agentstack/agent-acceptor/types"
)

// TestOutcome is the recorded outcome of one test.
type TestOutcome struct {
	Name     string
	Status   types.TestStatus
	Message  string
	Duration time.Duration
}

// SuiteOutcome is the recorded outcome of one suite (or one failed suite
// enumeration).
type SuiteOutcome struct {
	Owner    string
	Kind     discovery.SourceKind
	Name     string
	Filtered bool
	Stats    types.RunStats
	Duration time.Duration
	Tests    []TestOutcome
}

// Result captures a complete e2e run.
type Result struct {
	RunID    string
	Mode     types.ExecutionMode
	Stats    types.RunStats
	Duration time.Duration
	Suites   []SuiteOutcome
}

// String renders the one-line run summary.
func (r *Result) String() string {
	return fmt.Sprintf("run %s completed in %.1fs: %d total, %d passed, %d failed, %d skipped",
		r.RunID, r.Duration.Seconds(), r.Stats.Total, r.Stats.Passed, r.Stats.Failed, r.Stats.Skipped)
}

// Options controls suite execution.
type Options struct {
	// Filter skips (without executing) any suite whose name does not
	// contain it as a case-sensitive substring.
	Filter string
	Mode   types.ExecutionMode
}

// Executor runs discovered suite sources in order.
type Executor struct {
	log    *zap.SugaredLogger
	tracer trace.Tracer
}

// NewExecutor creates an executor.
func NewExecutor(log *zap.SugaredLogger) *Executor {
	return &Executor{
		log:    log,
		tracer: otel.Tracer("agent-acceptor/runner"),
	}
}

// Run executes every source's suites against the owning agent's runtime
// handle, in discovery order, aggregating counts into one final RunStats.
// A failing test never aborts its suite or subsequent suites; a source
// whose suites could not be enumerated counts as a single failure and the
// remaining sources still run.
func (e *Executor) Run(ctx context.Context, agents []loader.StartedAgent, sources []discovery.SuiteSource, opts Options) *Result {
	result := &Result{
		RunID: uuid.New().String(),
		Mode:  opts.Mode,
	}
	start := time.Now()
	e.log.Infow("running tests", "run_id", result.RunID, "mode", opts.Mode, "sources", len(sources))

	suiteCount := 0
	for _, src := range sources {
		if ctx.Err() != nil {
			e.log.Warnw("test execution interrupted", "run_id", result.RunID)
			break
		}

		if src.Err != nil {
			// Suite enumeration itself failed: one failure for this source,
			// then keep going with the rest.
			e.log.Errorw("suite enumeration failed", "owner", src.Owner, "err", src.Err)
			metrics.RecordErrorDetails("suite_enumeration", src.Err)
			result.Stats.Failed++
			result.Stats.Failures = append(result.Stats.Failures, types.TestFailure{
				Suite:   src.Owner,
				Message: stripansi.Strip(src.Err.Error()),
			})
			result.Suites = append(result.Suites, SuiteOutcome{
				Owner: src.Owner,
				Kind:  src.Kind,
				Name:  src.Owner,
				Stats: types.RunStats{Failed: 1},
			})
			continue
		}

		handle := agents[src.AgentIndex].Handle
		for _, suite := range src.Suites {
			if ctx.Err() != nil {
				break
			}
			suiteCount++

			if !discovery.MatchesFilter(suite.Name, opts.Filter) {
				e.log.Infow("suite skipped by filter", "suite", suite.Name, "filter", opts.Filter)
				result.Stats.Skipped++
				result.Suites = append(result.Suites, SuiteOutcome{
					Owner:    src.Owner,
					Kind:     src.Kind,
					Name:     suite.Name,
					Filtered: true,
					Stats:    types.RunStats{Skipped: 1},
				})
				continue
			}

			outcome := e.runSuite(ctx, suite, handle, src, result.RunID)
			result.Stats.Merge(outcome.Stats)
			result.Suites = append(result.Suites, outcome)
		}
	}

	if opts.Mode == types.DirectPluginMode && suiteCount == 0 {
		e.log.Warnw("plugin under test declares no test suites", "run_id", result.RunID)
	}

	result.Duration = time.Since(start)
	status := string(types.TestStatusPass)
	if result.Stats.HasFailures() {
		status = string(types.TestStatusFail)
	}
	metrics.RecordRun(result.RunID, string(result.Mode), status,
		result.Stats.Total, result.Stats.Failed, result.Duration)
	e.log.Infow("test run completed", "run_id", result.RunID,
		"total", result.Stats.Total, "passed", result.Stats.Passed,
		"failed", result.Stats.Failed, "skipped", result.Stats.Skipped)
	return result
}

// runSuite runs every test in the suite in order. Failure isolation is
// per-test: a failure (or panic) is recorded and the next test still runs.
func (e *Executor) runSuite(ctx context.Context, suite types.TestSuite, handle *types.RuntimeHandle, src discovery.SuiteSource, runID string) SuiteOutcome {
	ctx, span := e.tracer.Start(ctx, fmt.Sprintf("suite %s", suite.Name))
	defer span.End()

	outcome := SuiteOutcome{
		Owner: src.Owner,
		Kind:  src.Kind,
		Name:  suite.Name,
	}
	suiteStart := time.Now()
	e.log.Infow("running suite", "suite", suite.Name, "owner", src.Owner, "tests", len(suite.Tests))

	for _, test := range suite.Tests {
		if ctx.Err() != nil {
			break
		}
		outcome.Stats.Total++
		testStart := time.Now()
		err := callTest(ctx, test, handle)
		duration := time.Since(testStart)

		if err != nil {
			msg := stripansi.Strip(err.Error())
			outcome.Stats.Failed++
			outcome.Stats.Failures = append(outcome.Stats.Failures, types.TestFailure{
				Suite:   suite.Name,
				Test:    test.Name,
				Message: msg,
			})
			outcome.Tests = append(outcome.Tests, TestOutcome{
				Name: test.Name, Status: types.TestStatusFail, Message: msg, Duration: duration,
			})
			metrics.RecordTestResult(runID, suite.Name, string(types.TestStatusFail))
			e.log.Errorw("✗ test failed", "suite", suite.Name, "test", test.Name, "err", msg)
			continue
		}

		outcome.Stats.Passed++
		outcome.Tests = append(outcome.Tests, TestOutcome{
			Name: test.Name, Status: types.TestStatusPass, Duration: duration,
		})
		metrics.RecordTestResult(runID, suite.Name, string(types.TestStatusPass))
		e.log.Infow("✓ test passed", "suite", suite.Name, "test", test.Name)
	}

	outcome.Duration = time.Since(suiteStart)
	return outcome
}

// callTest invokes one test function, converting a panic into a failure so
// a misbehaving test cannot take down the harness.
func callTest(ctx context.Context, test types.Test, handle *types.RuntimeHandle) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	if test.Fn == nil {
		return fmt.Errorf("test %s has no function", test.Name)
	}
	return test.Fn(ctx, handle)
}
