package acceptor

import (
	"fmt"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/agentstack/agent-acceptor/runner"
	"github.com/agentstack/agent-acceptor/types"
)

// printResultsTable prints the results of the test run to the console.
func (h *Harness) printResultsTable(result *runner.Result) {
	h.log.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("Agent Test Results (%s)", formatDuration(result.Duration)))

	// Configure columns
	t.AppendHeader(table.Row{
		"Type", "ID", "Duration", "Tests", "Passed", "Failed", "Skipped", "Status", "Error",
	})

	// Set column configurations for better readability
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Type", AutoMerge: true},
		{Name: "ID", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Skipped", Align: text.AlignRight},
		{Name: "Error", WidthMax: 80, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, suite := range result.Suites {
		errMsg := ""
		if suite.Filtered {
			errMsg = "skipped by filter"
		} else if len(suite.Tests) == 0 && suite.Stats.Failed > 0 {
			errMsg = firstFailureMessage(suite.Stats.Failures)
		}

		// Suite row - show test counts but no "1" in Tests column
		t.AppendRow(table.Row{
			string(suite.Kind),
			fmt.Sprintf("%s/%s", suite.Owner, suite.Name),
			formatDuration(suite.Duration),
			"-", // Don't count suite as a test
			suite.Stats.Passed,
			suite.Stats.Failed,
			suite.Stats.Skipped,
			getResultString(suiteStatus(suite)),
			errMsg,
		})

		// Print tests in this suite
		for i, tc := range suite.Tests {
			prefix := "├──"
			if i == len(suite.Tests)-1 {
				prefix = "└──"
			}

			t.AppendRow(table.Row{
				"Test",
				fmt.Sprintf("%s %s", prefix, tc.Name),
				formatDuration(tc.Duration),
				"1", // Count actual test
				boolToInt(tc.Status == types.TestStatusPass),
				boolToInt(tc.Status == types.TestStatusFail),
				boolToInt(tc.Status == types.TestStatusSkip),
				getResultString(tc.Status),
				tc.Message,
			})
		}
	}
	t.AppendSeparator()

	runStatus := types.TestStatusPass
	if result.Stats.HasFailures() {
		runStatus = types.TestStatusFail
	} else if result.Stats.Total == 0 && result.Stats.Skipped > 0 {
		runStatus = types.TestStatusSkip
	}

	// Update the table style setting based on result status
	if runStatus == types.TestStatusPass {
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	} else if runStatus == types.TestStatusSkip {
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	} else {
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	// Add summary footer
	t.AppendFooter(table.Row{
		"TOTAL",
		"",
		formatDuration(result.Duration),
		result.Stats.Total,
		result.Stats.Passed,
		result.Stats.Failed,
		result.Stats.Skipped,
		getResultString(runStatus),
		"",
	})

	t.Render()
}

func suiteStatus(suite runner.SuiteOutcome) types.TestStatus {
	switch {
	case suite.Stats.Failed > 0:
		return types.TestStatusFail
	case suite.Filtered:
		return types.TestStatusSkip
	default:
		return types.TestStatusPass
	}
}

func firstFailureMessage(failures []types.TestFailure) string {
	if len(failures) == 0 {
		return ""
	}
	return failures[0].Message
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func getResultString(status types.TestStatus) string {
	switch status {
	case types.TestStatusPass:
		return "✓ pass"
	case types.TestStatusSkip:
		return "- skip"
	default:
		return "✗ fail"
	}
}
