package httpapi

import (
	"context"
	"net/http"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/compiler"
)

// Translator is the external NLQ collaborator: it turns a natural-language
// question into a semantic query (or declines with suggestions). No
// concrete implementation ships in this repository, per spec.md §1's
// explicit non-goal; /v1/nlq replies 501 when none is injected.
type Translator interface {
	Translate(ctx context.Context, question, dataset string) (compiler.QueryRequest, []Suggestion, error)
}

// Suggestion is a translator's hint when it cannot produce a confident
// semantic query — e.g. a clarifying question or a close-match dataset.
type Suggestion struct {
	Label   string                 `json:"label"`
	Request *compiler.QueryRequest `json:"request,omitempty"`
}

// Stats accompanies every query-shaped response, per spec.md §6.
type Stats struct {
	RowCount   int   `json:"row_count"`
	DurationMS int64 `json:"duration_ms"`
	Truncated  bool  `json:"truncated"`
	Cached     bool  `json:"cached"`
}

type queryResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
	Stats   Stats    `json:"stats"`
}

func bypassCache(r *http.Request) bool {
	return r.Header.Get("Cache-Control") == "no-cache"
}

func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req compiler.QueryRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	res, cached, err := h.engine.Query(r.Context(), req, id.Tenant, id.IsAdmin(), bypassCache(r))
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	h.recordQuery(r, id, req.Dataset, "", res.RowCount, http.StatusOK, cached, nil)

	httpserver.Respond(w, http.StatusOK, queryResponse{
		Columns: res.Columns,
		Rows:    res.Rows,
		Stats: Stats{
			RowCount:   res.RowCount,
			DurationMS: res.DurationMS,
			Truncated:  res.Truncated,
			Cached:     cached,
		},
	})
}

// sqlRequest is the JSON body for POST /v1/sql.
type sqlRequest struct {
	SQL        string `json:"sql" validate:"required"`
	Dataset    string `json:"dataset" validate:"required"`
	Parameters []any  `json:"parameters,omitempty"`
}

func (h *Handler) handleSQL(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req sqlRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	res, err := h.engine.RawSQL(r.Context(), req.Dataset, req.SQL, id.Tenant, id.IsAdmin())
	if err != nil {
		h.recordQuery(r, id, req.Dataset, "", 0, 0, false, err)
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	h.recordQuery(r, id, req.Dataset, "", res.RowCount, http.StatusOK, false, nil)

	httpserver.Respond(w, http.StatusOK, queryResponse{
		Columns: res.Columns,
		Rows:    res.Rows,
		Stats: Stats{
			RowCount:   res.RowCount,
			DurationMS: res.DurationMS,
			Truncated:  res.Truncated,
		},
	})
}

// nlqRequest is the JSON body for POST /v1/nlq.
type nlqRequest struct {
	Question string `json:"question" validate:"required"`
	Dataset  string `json:"dataset" validate:"required"`
	Provider string `json:"provider,omitempty"`
	Execute  bool   `json:"execute,omitempty"`
}

type nlqResponse struct {
	Request     compiler.QueryRequest `json:"request"`
	Suggestions []Suggestion          `json:"suggestions,omitempty"`
	Result      *queryResponse        `json:"result,omitempty"`
}

func (h *Handler) handleNLQ(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	if h.translator == nil {
		httpserver.RespondError(w, http.StatusNotImplemented, "not_implemented",
			"no NLQ translator is configured for this deployment")
		return
	}

	var req nlqRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	translated, suggestions, err := h.translator.Translate(r.Context(), req.Question, req.Dataset)
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	resp := nlqResponse{Request: translated, Suggestions: suggestions}

	if req.Execute && len(suggestions) == 0 {
		res, cached, err := h.engine.Query(r.Context(), translated, id.Tenant, id.IsAdmin(), false)
		if err != nil {
			httpserver.RespondErr(w, h.logger, err)
			return
		}
		resp.Result = &queryResponse{
			Columns: res.Columns,
			Rows:    res.Rows,
			Stats: Stats{
				RowCount:   res.RowCount,
				DurationMS: res.DurationMS,
				Truncated:  res.Truncated,
				Cached:     cached,
			},
		}
	}

	httpserver.Respond(w, http.StatusOK, resp)
}
