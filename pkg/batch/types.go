// Package batch schedules a DAG of sub-queries, resolving $ref tokens
// between them and bounding parallelism per topological group, per
// spec.md §4.11.
package batch

import (
	"context"

	"github.com/setupranali/gateway/pkg/executor"
)

// Status is a sub-query's position in its state machine: pending → ready
// (deps satisfied) → running → (success | failed | skipped).
type Status string

const (
	StatusPending Status = "pending"
	StatusReady   Status = "ready"
	StatusRunning Status = "running"
	StatusSuccess Status = "success"
	StatusFailed  Status = "failed"
	StatusSkipped Status = "skipped"
)

// Run is what one sub-query actually does once its $ref filters are
// resolved. Supplied by the caller (engine.Batch), which closes over the
// sub-request and runs it, with the resolved filter values, through the
// engine's Query path.
type Run func(ctx context.Context, resolvedFilters map[string]any) (executor.QueryResult, error)

// SubRequest is one node of the batch DAG.
type SubRequest struct {
	ID          string
	DependsOn   []string
	Filters     map[string]any // raw values, some possibly "$ref:<id>[<n>].<field>" tokens
	Run         Run
}

// SubResult is the outcome of one sub-query.
type SubResult struct {
	ID     string
	Status Status
	Result executor.QueryResult
	Err    error
}

// Result is the whole batch's outcome, keyed by sub-request id.
type Result struct {
	Results map[string]SubResult
}
