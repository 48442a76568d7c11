package types

import (
	"fmt"
	"time"
)

// ExecutionMode selects which suite sources are eligible for a run.
// DirectPluginMode holds iff the loaded target is a single plugin under
// test; otherwise ProjectMode holds.
type ExecutionMode string

const (
	// ProjectMode runs the project's agent-level suites plus the suites of
	// every plugin directly declared in the project descriptor.
	ProjectMode ExecutionMode = "project"

	// DirectPluginMode runs exactly one plugin's own declared suites against
	// a synthesized default test agent, bypassing project-level suites.
	DirectPluginMode ExecutionMode = "plugin"
)

// IsValid reports whether the mode is one of the known execution modes.
func (m ExecutionMode) IsValid() bool {
	return m == ProjectMode || m == DirectPluginMode
}

// ResourceLease is the combination of an allocated port and scratch
// directory exclusively owned by one run. It is released exactly once.
type ResourceLease struct {
	Port       int
	ScratchDir string
	AcquiredAt time.Time
}

func (l *ResourceLease) String() string {
	return fmt.Sprintf("port=%d scratchDir=%s", l.Port, l.ScratchDir)
}
