package pipeline

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRunner() *Runner {
	return NewRunner(withIDFunc(func() string { return "test-run" }))
}

func okStep(name string, ran *[]string) Step {
	return Step{
		Name: name,
		Run: func(context.Context) (Outcome, error) {
			*ran = append(*ran, name)
			return Ok, nil
		},
	}
}

func TestExecuteRunsStepsInOrder(t *testing.T) {
	var ran []string
	runner := testRunner()

	result, err := runner.Execute(context.Background(), []Step{
		okStep("update", &ran),
		okStep("sync", &ran),
		okStep("archive", &ran),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"update", "sync", "archive"}, ran)
	assert.Equal(t, "test-run", result.RunID)
	assert.Len(t, result.Steps, 3)
	assert.False(t, result.Failed())
}

func TestExecuteStopsOnRequiredFailure(t *testing.T) {
	var ran []string
	runner := testRunner()

	result, err := runner.Execute(context.Background(), []Step{
		okStep("update", &ran),
		{
			Name: "sync",
			Run: func(context.Context) (Outcome, error) {
				return Failed, errors.New("bucket unreachable")
			},
		},
		okStep("archive", &ran),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step sync failed")

	assert.Equal(t, []string{"update"}, ran, "steps after the failure must not run")
	assert.Len(t, result.Steps, 2)
	assert.True(t, result.Failed())
}

func TestExecuteContinuesPastBestEffortFailure(t *testing.T) {
	var ran []string
	runner := testRunner()

	result, err := runner.Execute(context.Background(), []Step{
		okStep("archive", &ran),
		{
			Name:       "summary",
			BestEffort: true,
			Run: func(context.Context) (Outcome, error) {
				return Failed, errors.New("push rejected")
			},
		},
		okStep("cleanup", &ran),
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"archive", "cleanup"}, ran)
	assert.Len(t, result.Steps, 3)
	assert.Equal(t, Failed, result.Steps[1].Outcome)
	assert.True(t, result.Steps[1].BestEffort)
	assert.False(t, result.Failed(), "a best-effort failure is not a failed run")
}

func TestExecuteRecordsDefaultApplied(t *testing.T) {
	runner := testRunner()

	result, err := runner.Execute(context.Background(), []Step{
		{
			Name: "manifest",
			Run: func(context.Context) (Outcome, error) {
				return DefaultApplied, nil
			},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, DefaultApplied, result.Steps[0].Outcome)
	assert.False(t, result.Failed())
}

func TestExecuteHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := testRunner()

	var ran []string
	result, err := runner.Execute(ctx, []Step{
		{
			Name: "update",
			Run: func(context.Context) (Outcome, error) {
				ran = append(ran, "update")
				cancel()
				return Ok, nil
			},
		},
		okStep("sync", &ran),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled before sync")
	assert.Equal(t, []string{"update"}, ran)
	assert.Len(t, result.Steps, 1)
}

func TestOutcomeString(t *testing.T) {
	assert.Equal(t, "ok", Ok.String())
	assert.Equal(t, "default-applied", DefaultApplied.String())
	assert.Equal(t, "failed", Failed.String())
}
