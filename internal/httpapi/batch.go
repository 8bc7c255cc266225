package httpapi

import (
	"net/http"

	"github.com/setupranali/gateway/internal/engine"
	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/batch"
	"github.com/setupranali/gateway/pkg/compiler"
)

// batchSubQueryRequest is one named node of a batch DAG, per spec.md §4.11.
type batchSubQueryRequest struct {
	compiler.QueryRequest
	ID        string   `json:"id" validate:"required"`
	DependsOn []string `json:"depends_on,omitempty"`
}

// batchRequest is the wire body for POST /v1/batch.
type batchRequest struct {
	Queries []batchSubQueryRequest `json:"queries" validate:"required,min=1,dive"`
	// Parallel caps in-group concurrency; 0 runs one sub-query at a time
	// (BATCH_MAX_PARALLEL is not applied here).
	Parallel int `json:"parallel,omitempty"`
	// StopOnError cancels all pending sub-queries on first failure.
	StopOnError bool `json:"stop_on_error,omitempty"`
	// Transaction is accepted for wire compatibility but is a no-op: batch
	// sub-queries may span different upstream sources, which rules out a
	// single cross-source transaction (spec.md's Non-goals exclude
	// cross-replica distributed execution).
	Transaction     bool `json:"transaction,omitempty"`
	IncludeMetadata bool `json:"include_metadata,omitempty"`
}

type batchSubResultResponse struct {
	Status  batch.Status `json:"status"`
	Columns []string     `json:"columns,omitempty"`
	Rows    [][]any      `json:"rows,omitempty"`
	Stats   *Stats       `json:"stats,omitempty"`
	Error   string       `json:"error,omitempty"`
}

type batchResponse struct {
	Results map[string]batchSubResultResponse `json:"results"`
}

func (h *Handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	queries := make([]engine.SubQuery, len(req.Queries))
	for i, q := range req.Queries {
		queries[i] = engine.SubQuery{ID: q.ID, DependsOn: q.DependsOn, Request: q.QueryRequest}
	}

	result, err := h.engine.Batch(r.Context(), queries, id.Tenant, id.IsAdmin(), batch.Options{
		MaxParallel: req.Parallel,
		StopOnError: req.StopOnError,
	})
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	resp := batchResponse{Results: make(map[string]batchSubResultResponse, len(result.Results))}
	for subID, sub := range result.Results {
		entry := batchSubResultResponse{Status: sub.Status}
		if sub.Err != nil {
			entry.Error = sub.Err.Error()
		}
		if sub.Status == batch.StatusSuccess {
			entry.Columns = sub.Result.Columns
			entry.Rows = sub.Result.Rows
			entry.Stats = &Stats{
				RowCount:   sub.Result.RowCount,
				DurationMS: sub.Result.DurationMS,
				Truncated:  sub.Result.Truncated,
			}
		}
		resp.Results[subID] = entry
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
