package httpapi

import (
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/auditlog"
	"github.com/setupranali/gateway/pkg/catalog"
)

type datasetSummary struct {
	ID         string `json:"id"`
	SourceID   string `json:"source_id"`
	Dimensions int    `json:"dimension_count"`
	Metrics    int    `json:"metric_count"`
	RLS        bool   `json:"rls_enforced"`
}

func (h *Handler) handleListDatasets(w http.ResponseWriter, r *http.Request) {
	snap := h.cat.Current()

	out := make([]datasetSummary, 0, len(snap.Datasets))
	for _, ds := range snap.Datasets {
		out = append(out, datasetSummary{
			ID:         ds.ID,
			SourceID:   ds.SourceID,
			Dimensions: len(ds.Dimensions),
			Metrics:    len(ds.Metrics),
			RLS:        ds.RLS != nil,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	httpserver.Respond(w, http.StatusOK, out)
}

type dimensionDetail struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Label string `json:"label,omitempty"`
}

type metricDetail struct {
	Name   string `json:"name"`
	Format string `json:"format,omitempty"`
}

type datasetDetail struct {
	ID         string            `json:"id"`
	SourceID   string            `json:"source_id"`
	Dimensions []dimensionDetail `json:"dimensions"`
	Metrics    []metricDetail    `json:"metrics"`
	TimeHint   string            `json:"time_hint,omitempty"`
	RLS        bool              `json:"rls_enforced"`
}

func (h *Handler) handleIntrospectDataset(w http.ResponseWriter, r *http.Request) {
	datasetID := chi.URLParam(r, "dataset")

	snap := h.cat.Current()
	ds, ok := snap.Dataset(datasetID)
	if !ok {
		httpserver.RespondError(w, http.StatusNotFound, apierrors.CodeDatasetNotFound, "dataset not found")
		return
	}

	detail := datasetDetail{
		ID:       ds.ID,
		SourceID: ds.SourceID,
		TimeHint: ds.TimeHint,
		RLS:      ds.RLS != nil,
	}
	for _, dim := range ds.Dimensions {
		detail.Dimensions = append(detail.Dimensions, dimensionDetail{Name: dim.Name, Type: string(dim.Type), Label: dim.Label})
	}
	for _, m := range ds.Metrics {
		detail.Metrics = append(detail.Metrics, metricDetail{Name: m.Name, Format: m.Format})
	}

	httpserver.Respond(w, http.StatusOK, detail)
}

type cacheClearRequest struct {
	Dataset string `json:"dataset,omitempty"`
}

func (h *Handler) handleCacheClear(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req cacheClearRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	if req.Dataset != "" {
		h.engine.InvalidateDataset(req.Dataset)
	} else {
		h.engine.ClearCache()
	}

	h.audit.Log(auditlog.Entry{
		Actor:      id.Tenant,
		Action:     "cache.clear",
		Resource:   "cache",
		ResourceID: req.Dataset,
	})

	httpserver.Respond(w, http.StatusNoContent, nil)
}

type catalogReloadResponse struct {
	Generation uint64 `json:"generation"`
	Datasets   int    `json:"dataset_count"`
}

// handleCatalogReload re-parses the catalog file from disk and swaps it in
// atomically. A reload that fails validation leaves the current snapshot
// untouched and reports the error; it never partially applies (pkg/catalog's
// Registry.Reload is itself atomic).
func (h *Handler) handleCatalogReload(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	current := h.cat.Current()
	next, err := catalog.LoadFile(h.catalogPath, current.Generation+1)
	if err != nil {
		httpserver.RespondError(w, http.StatusUnprocessableEntity, "validation", "catalog reload failed: "+err.Error())
		return
	}
	h.cat.Reload(next)

	h.audit.Log(auditlog.Entry{
		Actor:    id.Tenant,
		Action:   "catalog.reload",
		Resource: "catalog",
	})

	httpserver.Respond(w, http.StatusOK, catalogReloadResponse{Generation: next.Generation, Datasets: len(next.Datasets)})
}
