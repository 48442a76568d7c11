// Package exitcodes defines the standard exit codes used by agent-acceptor.
package exitcodes

import (
	"os"
	"syscall"
)

// Exit code constants used by agent-acceptor:
//
// * Success (0): all tests passed
// * TestFailure (1): one or more tests failed
// * RuntimeErr (2): runtime errors such as panics, bad configuration, or
//   failure to start at least one agent runtime
//
// Signal-triggered shutdown exits with 128+signum after cleanup completes,
// distinguishing voluntary interruption from ordinary failure.
const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2

	signalBase = 128

	Interrupt  = signalBase + int(syscall.SIGINT)  // 130
	Terminated = signalBase + int(syscall.SIGTERM) // 143
)

// ForSignal maps a termination signal to its exit code.
func ForSignal(sig os.Signal) int {
	if s, ok := sig.(syscall.Signal); ok {
		return signalBase + int(s)
	}
	return Interrupt
}
