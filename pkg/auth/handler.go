package auth

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/setupranali/gateway/internal/httpserver"
)

// Handler exposes admin-only CRUD over API keys, backed by a PgStore and
// kept in sync with the live Resolver so issued/revoked keys take effect
// without waiting for the next Refresh.
type Handler struct {
	logger   *slog.Logger
	store    *PgStore
	resolver *Resolver
}

// NewHandler creates a key-management Handler.
func NewHandler(logger *slog.Logger, store *PgStore, resolver *Resolver) *Handler {
	return &Handler{logger: logger, store: store, resolver: resolver}
}

// Routes returns a chi.Router with every key-management route mounted.
// Callers mount this under RequireRole(logger, RoleAdmin).
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/", h.handleCreate)
	r.Delete("/{keyHash}", h.handleRevoke)
	return r
}

// createRequest is the JSON body for POST /admin/keys.
type createRequest struct {
	Tenant    string `json:"tenant" validate:"required"`
	Role      string `json:"role" validate:"required,oneof=admin analyst viewer"`
	RateClass string `json:"rate_class"`
}

// createResponse includes the raw key, shown exactly once.
type createResponse struct {
	RawKey    string `json:"raw_key"`
	KeyPrefix string `json:"key_prefix"`
	Tenant    string `json:"tenant"`
	Role      string `json:"role"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	raw, rec, err := h.store.Create(r.Context(), CreateParams{
		Tenant:    req.Tenant,
		Role:      Role(req.Role),
		RateClass: req.RateClass,
	})
	if err != nil {
		h.logger.Error("creating api key", "error", err)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to create api key")
		return
	}

	h.resolver.Set(rec.KeyHash, rec.Identity)

	httpserver.Respond(w, http.StatusCreated, createResponse{
		RawKey:    raw,
		KeyPrefix: rec.Identity.KeyPrefix,
		Tenant:    rec.Identity.Tenant,
		Role:      string(rec.Identity.Role),
	})
}

func (h *Handler) handleRevoke(w http.ResponseWriter, r *http.Request) {
	keyHash := chi.URLParam(r, "keyHash")

	if err := h.store.Revoke(r.Context(), keyHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			httpserver.RespondError(w, http.StatusNotFound, "not_found", "api key not found")
			return
		}
		h.logger.Error("revoking api key", "error", err, "key_hash", keyHash)
		httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "failed to revoke api key")
		return
	}

	h.resolver.Remove(keyHash)
	httpserver.Respond(w, http.StatusNoContent, nil)
}
