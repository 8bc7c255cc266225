package httpapi

import (
	"context"
	"net/http"
	"net/url"

	"github.com/setupranali/gateway/internal/httpserver"
)

// Shaper is the external collaborator behind the GraphQL/OData/Tableau WDC
// routes: each reshapes its protocol's request into one or more semantic
// queries against the core and reshapes the result back. No concrete
// implementation ships in this repository, per spec.md §1's explicit
// non-goal; these routes are thin pass-throughs that reply 501 when no
// Shaper is configured.
type Shaper interface {
	GraphQL(ctx context.Context, query string, variables map[string]any) (any, error)
	OData(ctx context.Context, path string, query url.Values) (any, error)
	TableauWDC(ctx context.Context) (any, error)
}

func (h *Handler) requireShaper(w http.ResponseWriter) bool {
	if h.shaper == nil {
		httpserver.RespondError(w, http.StatusNotImplemented, "not_implemented",
			"no external shaper is configured for this deployment")
		return false
	}
	return true
}

type graphQLRequest struct {
	Query     string         `json:"query" validate:"required"`
	Variables map[string]any `json:"variables,omitempty"`
}

func (h *Handler) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if !h.requireShaper(w) {
		return
	}

	var req graphQLRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	result, err := h.shaper.GraphQL(r.Context(), req.Query, req.Variables)
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleOData(w http.ResponseWriter, r *http.Request) {
	if !h.requireShaper(w) {
		return
	}

	result, err := h.shaper.OData(r.Context(), r.URL.Path, r.URL.Query())
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}

func (h *Handler) handleTableauWDC(w http.ResponseWriter, r *http.Request) {
	if !h.requireShaper(w) {
		return
	}

	result, err := h.shaper.TableauWDC(r.Context())
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}
	httpserver.Respond(w, http.StatusOK, result)
}
