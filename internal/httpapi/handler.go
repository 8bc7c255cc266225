// Package httpapi exposes the gateway's HTTP surface: the semantic query
// family (/v1/query, /v1/sql, /v1/nlq, /v1/stream, /v1/batch), the thin
// external-shaper routes, catalog and source administration, and analytics
// readout, per spec.md §6.
package httpapi

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/setupranali/gateway/internal/engine"
	"github.com/setupranali/gateway/pkg/analytics"
	"github.com/setupranali/gateway/pkg/auditlog"
	"github.com/setupranali/gateway/pkg/auth"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/ratelimit"
	"github.com/setupranali/gateway/pkg/source"
)

// Handler holds every collaborator the query and admin surfaces need. One
// Handler is built at startup and mounted into the chi router tree.
type Handler struct {
	logger *slog.Logger

	engine      *engine.Engine
	cat         *catalog.Registry
	catalogPath string
	sources     *source.Registry
	sourceStore *source.PgStore
	recorder    *analytics.Recorder
	audit       *auditlog.Writer

	translator Translator
	shaper     Shaper

	limiter ratelimit.Limiter

	upgrader websocket.Upgrader
}

// Deps bundles the collaborators New needs; used instead of a long
// positional constructor signature since the set of optional external
// collaborators (Translator, Shaper) is expected to grow.
type Deps struct {
	Logger      *slog.Logger
	Engine      *engine.Engine
	Catalog     *catalog.Registry
	CatalogPath string
	Sources     *source.Registry
	SourceStore *source.PgStore
	Recorder    *analytics.Recorder
	Audit       *auditlog.Writer

	// Translator and Shaper are external collaborators spec.md §1 scopes
	// out of this repository's core; either may be nil, in which case the
	// corresponding routes reply 501.
	Translator Translator
	Shaper     Shaper

	// Limiter enforces per-route-class request budgets. Nil disables rate
	// limiting entirely (used in tests).
	Limiter ratelimit.Limiter
}

// New builds a Handler.
func New(d Deps) *Handler {
	return &Handler{
		logger:      d.Logger,
		engine:      d.Engine,
		cat:         d.Catalog,
		catalogPath: d.CatalogPath,
		sources:     d.Sources,
		sourceStore: d.SourceStore,
		recorder:    d.Recorder,
		audit:       d.Audit,
		translator:  d.Translator,
		shaper:      d.Shaper,
		limiter:     d.Limiter,
		upgrader:    websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
	}
}

// rateLimitKey extracts the rate-limit key and per-key override limit (a
// requests-per-minute integer, 0 = class default) from the request's
// resolved identity.
func rateLimitKey(r *http.Request) (string, int) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		return "anonymous", 0
	}
	override, _ := strconv.Atoi(id.RateClass)
	return id.Tenant, override
}

// withRateLimit applies class-scoped rate limiting when a Limiter is
// configured; a nil Limiter (tests) leaves the route unthrottled.
func (h *Handler) withRateLimit(r chi.Router, class ratelimit.RouteClass) {
	if h.limiter != nil {
		r.Use(ratelimit.Middleware(h.limiter, class, rateLimitKey, h.logger))
	}
}

// Routes mounts every authenticated route. The caller wraps this with
// auth.Middleware before serving; Routes itself applies the per-class rate
// limit to each group (withRateLimit) and auth.RequireRole(RoleAdmin) to the
// admin-only sub-trees.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Group(func(qr chi.Router) {
		h.withRateLimit(qr, ratelimit.ClassQuery)
		qr.Post("/v1/query", h.handleQuery)
		qr.Post("/v1/sql", h.handleSQL)
		qr.Post("/v1/nlq", h.handleNLQ)
		qr.Post("/v1/stream", h.handleStream)
		qr.Post("/v1/batch", h.handleBatch)
		qr.Post("/v1/graphql", h.handleGraphQL)
		qr.Get("/v1/tableau/wdc", h.handleTableauWDC)
		qr.Get("/v1/datasets", h.handleListDatasets)
		qr.Get("/v1/introspection/{dataset}", h.handleIntrospectDataset)
		qr.Get("/v1/analytics", h.handleAnalyticsQuery)
		qr.Get("/v1/analytics/recent-queries", h.handleRecentQueries)
		qr.Get("/v1/health", h.handleHealth)
	})

	r.Group(func(or chi.Router) {
		h.withRateLimit(or, ratelimit.ClassOData)
		or.Get("/v1/odata/*", h.handleOData)
	})

	r.Route("/v1/sources", func(sr chi.Router) {
		h.withRateLimit(sr, ratelimit.ClassSources)
		sr.Use(auth.RequireRole(h.logger, auth.RoleAdmin))
		sr.Get("/", h.handleListSources)
		sr.Post("/", h.handleCreateSource)
		sr.Delete("/{id}", h.handleDeleteSource)
		sr.Get("/{id}/health", h.handleSourceHealth)
	})

	r.Route("/admin", func(ar chi.Router) {
		h.withRateLimit(ar, ratelimit.ClassSources)
		ar.Use(auth.RequireRole(h.logger, auth.RoleAdmin))
		ar.Post("/cache/clear", h.handleCacheClear)
		ar.Post("/catalog/reload", h.handleCatalogReload)
		ar.Get("/audit", h.handleAuditLog)
	})

	return r
}

func identityOrUnauthenticated(w http.ResponseWriter, r *http.Request) (auth.Identity, bool) {
	id, ok := auth.FromContext(r.Context())
	if !ok {
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return auth.Identity{}, false
	}
	return id, true
}
