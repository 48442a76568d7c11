// Package metrics exposes prometheus metrics for harness runs.
package metrics

import (
	"regexp"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	MetricsNamespace = "acceptor"
)

var (
	nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z ]+`)

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "errors_total",
		Help:      "Count of harness errors",
	}, []string{
		"error",
	})

	agentsStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "agents_started_total",
		Help:      "Count of agents started",
	}, []string{
		"agent",
	})

	testResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "test_results_total",
		Help:      "Count of individual test results",
	}, []string{
		"run_id",
		"suite",
		"status",
	})

	runResults = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_results",
		Help:      "Result of harness runs",
	}, []string{
		"run_id",
		"mode",
		"result",
	})

	runTestTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_total",
		Help:      "Total number of tests in a run",
	}, []string{
		"run_id",
		"mode",
	})

	runTestFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: MetricsNamespace,
		Name:      "run_test_failed",
		Help:      "Number of failed tests in a run",
	}, []string{
		"run_id",
		"mode",
	})

	runDuration = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: MetricsNamespace,
		Name:      "run_duration_seconds",
		Help:      "Duration of harness runs",
	}, []string{
		"run_id",
		"mode",
	})
)

// errToLabel tries to make the error string a more valid Prometheus label.
func errToLabel(err error) string {
	if err == nil {
		return "nil"
	}
	errClean := nonAlphanumericRegex.ReplaceAllString(err.Error(), "")
	errClean = strings.ReplaceAll(errClean, " ", "_")
	errClean = strings.ReplaceAll(errClean, "__", "_")
	return errClean
}

// RecordError increments the error counter for the given label.
func RecordError(label string) {
	errorsTotal.WithLabelValues(label).Inc()
}

// RecordErrorDetails concats a cleaned error message onto the label.
func RecordErrorDetails(label string, err error) {
	if err == nil {
		return
	}
	RecordError(label + "." + errToLabel(err))
}

// RecordAgentStarted counts one started agent.
func RecordAgentStarted(agent string) {
	agentsStarted.WithLabelValues(agent).Inc()
}

// RecordTestResult counts one test outcome.
func RecordTestResult(runID, suite, status string) {
	testResults.WithLabelValues(runID, suite, status).Inc()
}

// RecordRun records the aggregate outcome of a run.
func RecordRun(runID, mode, result string, total, failed int, duration time.Duration) {
	runResults.WithLabelValues(runID, mode, result).Set(1)
	runTestTotal.WithLabelValues(runID, mode).Add(float64(total))
	runTestFailed.WithLabelValues(runID, mode).Add(float64(failed))
	runDuration.WithLabelValues(runID, mode).Set(duration.Seconds())
}
