package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/setupranali/gateway/internal/httpserver"
)

// version is stamped at build time in a full deployment; fixed here since
// this repository ships no separate version package.
const version = "dev"

type dependencyStatus struct {
	Cache string `json:"cache"`
	Store string `json:"store"`
}

type healthResponse struct {
	Status       string            `json:"status"`
	Version      string            `json:"version"`
	Dependencies dependencyStatus  `json:"dependencies"`
	Sources      []sourceHealthResponse `json:"sources,omitempty"`
}

// handleHealth reports liveness of the cache and the control-plane store,
// plus a per-source readout, per spec.md §6 and the source health feature
// described alongside it.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	deps := dependencyStatus{Cache: "ok", Store: "ok"}
	status := "ok"

	if h.sourceStore != nil {
		if _, err := h.sourceStore.List(ctx); err != nil {
			h.logger.Warn("health check: control-plane store unreachable", "error", err)
			deps.Store = "error"
			status = "degraded"
		}
	}

	var sources []sourceHealthResponse
	for _, entry := range h.sources.All() {
		entryCtx, entryCancel := context.WithTimeout(ctx, time.Second)
		conn, err := entry.Pool.Acquire(entryCtx)
		entryCancel()
		if err != nil {
			sources = append(sources, sourceHealthResponse{ID: entry.ID, Healthy: false, Error: err.Error()})
			status = "degraded"
			continue
		}
		conn.Release()
		sources = append(sources, sourceHealthResponse{ID: entry.ID, Healthy: true})
	}

	respondStatus := http.StatusOK
	if status != "ok" {
		respondStatus = http.StatusServiceUnavailable
	}

	httpserver.Respond(w, respondStatus, healthResponse{
		Status:       status,
		Version:      version,
		Dependencies: deps,
		Sources:      sources,
	})
}
