package types

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunStatsMerge(t *testing.T) {
	s := RunStats{Total: 2, Passed: 1, Failed: 1, Failures: []TestFailure{{Suite: "a", Test: "t1"}}}
	s.Merge(RunStats{Total: 3, Passed: 2, Skipped: 1, Failures: nil})
	s.Merge(RunStats{Total: 1, Failed: 1, Failures: []TestFailure{{Suite: "b", Test: "t2"}}})

	assert.Equal(t, 6, s.Total)
	assert.Equal(t, 3, s.Passed)
	assert.Equal(t, 2, s.Failed)
	assert.Equal(t, 1, s.Skipped)
	require.Len(t, s.Failures, 2)
	assert.True(t, s.HasFailures())

	clean := RunStats{Total: 5, Passed: 5}
	assert.False(t, clean.HasFailures())
}

func TestRuntimeHandleStopOnce(t *testing.T) {
	count := 0
	h := NewRuntimeHandle(Character{Name: "Eliza"}, nil, func(ctx context.Context) error {
		count++
		return errors.New("stop failed")
	})

	require.Error(t, h.Stop(context.Background()))
	require.NoError(t, h.Stop(context.Background()), "later calls are no-ops")
	assert.Equal(t, 1, count)
}

func TestRuntimeHandlePluginLookup(t *testing.T) {
	sql := &StaticPlugin{PluginName: "plugin-sql"}
	h := NewRuntimeHandle(Character{Name: "Eliza"}, []Plugin{sql}, nil)

	assert.Same(t, Plugin(sql), h.Plugin("plugin-sql"))
	assert.Nil(t, h.Plugin("plugin-http"))
}

func TestExecutionModeIsValid(t *testing.T) {
	assert.True(t, ProjectMode.IsValid())
	assert.True(t, DirectPluginMode.IsValid())
	assert.False(t, ExecutionMode("gadget").IsValid())
}
