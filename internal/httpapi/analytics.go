package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/analytics"
	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/auth"
)

// recentQueriesCursor recovers the keyset cursor (timestamp + record id) a
// recent-queries page was built from, so the following page's List call can
// resume from that exact position.
func recentQueriesCursor(rec analytics.QueryRecord) httpserver.Cursor {
	id, err := uuid.Parse(rec.ID)
	if err != nil {
		id = uuid.Nil
	}
	return httpserver.Cursor{CreatedAt: rec.Timestamp, ID: id}
}

// recordQuery enqueues one terminal request's summary for async persistence.
// It is best-effort and never blocks or fails the response: h.recorder may
// be nil in tests, and Recorder.Record itself drops records under buffer
// pressure rather than applying backpressure to the request path.
func (h *Handler) recordQuery(r *http.Request, id auth.Identity, dataset, fingerprint string, rowCount, statusCode int, cacheHit bool, err error) {
	if h.recorder == nil {
		return
	}

	rec := analytics.QueryRecord{
		ID:          uuid.NewString(),
		Tenant:      id.Tenant,
		Dataset:     dataset,
		Route:       r.URL.Path,
		Fingerprint: fingerprint,
		StatusCode:  statusCode,
		RowCount:    rowCount,
		CacheHit:    cacheHit,
		Timestamp:   time.Now(),
	}
	if err != nil {
		rec.Error = err.Error()
	}

	h.recorder.Record(rec)
}

// handleRecentQueries serves a cursor-paginated, newest-first listing of
// this tenant's recent queries. The cursor encodes the last-seen record's
// timestamp and id; List is re-queried with Until set to that timestamp so
// the next page resumes exactly where the previous one ended, and the
// boundary record itself (which List's inclusive Until re-returns) is
// dropped before paging.
func (h *Handler) handleRecentQueries(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	params, err := httpserver.ParseCursorParams(r)
	if err != nil {
		httpserver.RespondError(w, http.StatusBadRequest, apierrors.CodeInvalidRequest, err.Error())
		return
	}

	fetchLimit := params.Limit + 1
	if params.After != nil {
		fetchLimit++
	}

	q := analytics.Query{Tenant: id.Tenant, IsAdmin: id.IsAdmin(), Limit: fetchLimit}
	if params.After != nil {
		q.Until = params.After.CreatedAt
	}

	records, err := h.recorder.List(q)
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	if params.After != nil && len(records) > 0 && records[0].ID == params.After.ID.String() {
		records = records[1:]
	}

	httpserver.Respond(w, http.StatusOK, httpserver.NewCursorPage(records, params.Limit, recentQueriesCursor))
}

func (h *Handler) handleAnalyticsQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	q := analytics.Query{Tenant: id.Tenant, IsAdmin: id.IsAdmin(), Limit: 100}

	if v := r.URL.Query().Get("since"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Since = t
		}
	}
	if v := r.URL.Query().Get("until"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			q.Until = t
		}
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			q.Limit = n
		}
	}

	records, err := h.recorder.List(q)
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, records)
}

func (h *Handler) handleAuditLog(w http.ResponseWriter, r *http.Request) {
	limit := 200
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}

	entries, err := h.audit.List(limit)
	if err != nil {
		httpserver.RespondErr(w, h.logger, err)
		return
	}

	httpserver.Respond(w, http.StatusOK, entries)
}
