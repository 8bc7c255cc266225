package batch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/executor"
)

func runOK(cols []string, rows [][]any) Run {
	return func(ctx context.Context, filters map[string]any) (executor.QueryResult, error) {
		return executor.QueryResult{Columns: cols, Rows: rows, RowCount: len(rows)}, nil
	}
}

func TestRunExecutesIndependentSubQueries(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", Run: runOK([]string{"n"}, [][]any{{1}})},
		{ID: "b", Run: runOK([]string{"n"}, [][]any{{2}})},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 2})

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Results["a"].Status)
	assert.Equal(t, StatusSuccess, res.Results["b"].Status)
}

func TestRunResolvesRefAgainstDependencyResult(t *testing.T) {
	var capturedRegion any
	reqs := []SubRequest{
		{ID: "top_region", Run: runOK([]string{"region"}, [][]any{{"us"}})},
		{
			ID:        "detail",
			DependsOn: []string{"top_region"},
			Filters:   map[string]any{"region": "$ref:top_region[0].region"},
			Run: func(ctx context.Context, filters map[string]any) (executor.QueryResult, error) {
				capturedRegion = filters["region"]
				return executor.QueryResult{Columns: []string{"x"}, Rows: [][]any{{1}}}, nil
			},
		},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 2})

	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Results["detail"].Status)
	assert.Equal(t, "us", capturedRegion)
}

func TestRunRejectsCyclicGraph(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", DependsOn: []string{"b"}, Run: runOK(nil, nil)},
		{ID: "b", DependsOn: []string{"a"}, Run: runOK(nil, nil)},
	}

	_, err := Run(context.Background(), reqs, Options{MaxParallel: 2})
	assert.Error(t, err)
}

func TestRunRejectsUnknownDependsOn(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", DependsOn: []string{"missing"}, Run: runOK(nil, nil)},
	}
	_, err := Run(context.Background(), reqs, Options{MaxParallel: 2})
	assert.Error(t, err)
}

func TestRunStopOnErrorSkipsDownstreamGroups(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", Run: func(ctx context.Context, f map[string]any) (executor.QueryResult, error) {
			return executor.QueryResult{}, assert.AnError
		}},
		{ID: "b", DependsOn: []string{"a"}, Run: runOK([]string{"n"}, [][]any{{1}})},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 2, StopOnError: true})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Results["a"].Status)
	assert.Equal(t, StatusSkipped, res.Results["b"].Status)
}

func TestRunWithoutStopOnErrorReportsPerIDStatus(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", Run: func(ctx context.Context, f map[string]any) (executor.QueryResult, error) {
			return executor.QueryResult{}, assert.AnError
		}},
		{ID: "b", Run: runOK([]string{"n"}, [][]any{{1}})},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 2, StopOnError: false})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Results["a"].Status)
	assert.Equal(t, StatusSuccess, res.Results["b"].Status)
}

func TestRunRefToFailedDependencyIsSkipped(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", Run: func(ctx context.Context, f map[string]any) (executor.QueryResult, error) {
			return executor.QueryResult{}, assert.AnError
		}},
		{
			ID:        "b",
			DependsOn: []string{"a"},
			Filters:   map[string]any{"region": "$ref:a[0].region"},
			Run:       runOK([]string{"x"}, [][]any{{1}}),
		},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 2})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Results["a"].Status)
	assert.Equal(t, StatusSkipped, res.Results["b"].Status)
}

func TestRunHonorsBatchDeadline(t *testing.T) {
	reqs := []SubRequest{
		{ID: "a", Run: func(ctx context.Context, f map[string]any) (executor.QueryResult, error) {
			select {
			case <-time.After(50 * time.Millisecond):
				return executor.QueryResult{}, nil
			case <-ctx.Done():
				return executor.QueryResult{}, ctx.Err()
			}
		}},
	}

	res, err := Run(context.Background(), reqs, Options{MaxParallel: 1, Deadline: time.Millisecond})

	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Results["a"].Status)
}
