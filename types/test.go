package types

import (
	"context"
)

// TestStatus represents the possible outcomes of a test execution.
type TestStatus string

const (
	TestStatusPass TestStatus = "pass"
	TestStatusFail TestStatus = "fail"
	TestStatusSkip TestStatus = "skip"
)

// TestFunc is the signature of a harness test. The function receives the
// live agent the test runs against; a non-nil error marks the test failed.
type TestFunc func(ctx context.Context, runtime *RuntimeHandle) error

// Test is a single named test within a suite.
type Test struct {
	Name string
	Fn   TestFunc
}

// TestSuite is a named, ordered collection of tests belonging to a plugin
// or to a project's agent definition. Suites are authored by plugin/project
// code and are read-only to the harness.
type TestSuite struct {
	Name  string
	Tests []Test
}

// TestFailure records a single recorded failure for the final report.
type TestFailure struct {
	Suite   string
	Test    string
	Message string
}

// RunStats tracks aggregate counts across a run. Counters are mutated
// incrementally during execution; callers receive a snapshot at the end.
type RunStats struct {
	Total    int
	Passed   int
	Failed   int
	Skipped  int
	Failures []TestFailure
}

// Merge folds another set of stats into this one.
func (s *RunStats) Merge(other RunStats) {
	s.Total += other.Total
	s.Passed += other.Passed
	s.Failed += other.Failed
	s.Skipped += other.Skipped
	s.Failures = append(s.Failures, other.Failures...)
}

// HasFailures reports whether any test failed.
func (s *RunStats) HasFailures() bool {
	return s.Failed > 0
}
