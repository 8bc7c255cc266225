package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/auditlog"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/source"
)

// sourceResponse is a source definition with its credential omitted; the
// sealed blob and plaintext DSN never cross the admin API.
type sourceResponse struct {
	ID           string `json:"id"`
	Kind         string `json:"kind"`
	PoolSize     int    `json:"pool_size"`
	MaxWaitMS    int64  `json:"max_wait_ms"`
	IdleTimeoutMS int64 `json:"idle_timeout_ms"`
	GCPProjectID string `json:"gcp_project_id,omitempty"`
	CreatedAt    string `json:"created_at"`
}

func toSourceResponse(c source.Config) sourceResponse {
	return sourceResponse{
		ID:            c.ID,
		Kind:          string(c.Kind),
		PoolSize:      c.PoolSize,
		MaxWaitMS:     c.MaxWait.Milliseconds(),
		IdleTimeoutMS: c.IdleTimeout.Milliseconds(),
		GCPProjectID:  c.GCPProjectID,
		CreatedAt:     c.CreatedAt.Format(time.RFC3339),
	}
}

func (h *Handler) handleListSources(w http.ResponseWriter, r *http.Request) {
	configs, err := h.sourceStore.List(r.Context())
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	out := make([]sourceResponse, len(configs))
	for i, c := range configs {
		out[i] = toSourceResponse(c)
	}
	httpserver.Respond(w, http.StatusOK, out)
}

// createSourceRequest is the wire body for POST /v1/sources. DSN is
// plaintext on the way in; it is sealed before it ever reaches PgStore.Create
// and is never echoed back.
type createSourceRequest struct {
	ID           string `json:"id" validate:"required,resourceid"`
	Kind         string `json:"kind" validate:"required"`
	DSN          string `json:"dsn" validate:"required"`
	PoolSize     int    `json:"pool_size,omitempty"`
	MaxWaitMS    int64  `json:"max_wait_ms,omitempty"`
	IdleTimeoutMS int64 `json:"idle_timeout_ms,omitempty"`
	GCPProjectID string `json:"gcp_project_id,omitempty"`
}

func (h *Handler) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req createSourceRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	kind := dialect.Kind(req.Kind)
	if _, known := dialect.Get(kind); !known {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation",
			"unknown source kind: "+req.Kind)
		return
	}

	cfg, err := h.sourceStore.Create(r.Context(), source.CreateParams{
		ID:           req.ID,
		Kind:         kind,
		DSN:          req.DSN,
		PoolSize:     req.PoolSize,
		MaxWait:      time.Duration(req.MaxWaitMS) * time.Millisecond,
		IdleTimeout:  time.Duration(req.IdleTimeoutMS) * time.Millisecond,
		GCPProjectID: req.GCPProjectID,
	})
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	entry, err := h.sourceStore.Open(r.Context(), cfg)
	if err != nil {
		h.logger.Error("opening newly created source", "error", err, "source_id", cfg.ID)
		httpserver.RespondErr(w, h.logger, apierrors.Internal(id.KeyPrefix, err))
		return
	}
	h.sources.Add(entry)

	h.audit.Log(auditlog.Entry{
		Actor:      id.Tenant,
		Action:     "source.create",
		Resource:   "source",
		ResourceID: cfg.ID,
	})

	httpserver.Respond(w, http.StatusCreated, toSourceResponse(cfg))
}

func (h *Handler) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	sourceID := chi.URLParam(r, "id")

	if err := h.sourceStore.Delete(r.Context(), sourceID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, apierrors.CodeSourceNotFound, "source not found")
			return
		}
		httpserver.RespondErr(w, h.logger, err)
		return
	}
	h.sources.Remove(sourceID)

	h.audit.Log(auditlog.Entry{
		Actor:      id.Tenant,
		Action:     "source.delete",
		Resource:   "source",
		ResourceID: sourceID,
	})

	httpserver.Respond(w, http.StatusNoContent, nil)
}

type sourceHealthResponse struct {
	ID      string `json:"id"`
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// handleSourceHealth checks out one connection and releases it immediately;
// a successful Acquire is treated as proof of liveness. No statement is run
// here, since Acquire already exercises the pool's own health check on
// checkout (spec.md §4.7).
func (h *Handler) handleSourceHealth(w http.ResponseWriter, r *http.Request) {
	sourceID := chi.URLParam(r, "id")

	entry, ok := h.sources.Get(sourceID)
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, apierrors.CodeSourceNotFound, "source not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	conn, err := entry.Pool.Acquire(ctx)
	if err != nil {
		httpserver.Respond(w, http.StatusOK, sourceHealthResponse{ID: sourceID, Healthy: false, Error: err.Error()})
		return
	}
	conn.Release()

	httpserver.Respond(w, http.StatusOK, sourceHealthResponse{ID: sourceID, Healthy: true})
}
