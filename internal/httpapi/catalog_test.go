package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/setupranali/gateway/pkg/catalog"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot(1, []*catalog.Dataset{
		{
			ID:       "orders",
			SourceID: "warehouse",
			Table:    "orders",
			Dimensions: []catalog.Dimension{
				{Name: "region", Expr: "region", Type: catalog.TypeString},
			},
			Metrics: []catalog.Metric{
				{Name: "revenue", Expr: "SUM(amount)", Format: "currency"},
			},
			RLS: &catalog.RLSPolicy{Mode: catalog.RLSModeTenantColumn, Field: "tenant_id"},
		},
	})
	if err != nil {
		t.Fatalf("building test snapshot: %v", err)
	}
	return snap
}

func TestHandleListDatasets(t *testing.T) {
	h := New(Deps{
		Logger:  slog.Default(),
		Catalog: catalog.NewRegistry(testSnapshot(t)),
	})

	r := httptest.NewRequest(http.MethodGet, "/v1/datasets", nil)
	w := httptest.NewRecorder()
	h.handleListDatasets(w, r)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body = %s", w.Code, w.Body.String())
	}

	var got []datasetSummary
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(got) != 1 || got[0].ID != "orders" {
		t.Fatalf("unexpected datasets: %+v", got)
	}
	if !got[0].RLS {
		t.Errorf("expected rls_enforced = true")
	}
}

func TestHandleIntrospectDataset(t *testing.T) {
	h := New(Deps{
		Logger:  slog.Default(),
		Catalog: catalog.NewRegistry(testSnapshot(t)),
	})

	tests := []struct {
		name       string
		dataset    string
		wantStatus int
	}{
		{name: "known dataset", dataset: "orders", wantStatus: http.StatusOK},
		{name: "unknown dataset", dataset: "nope", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := h.Routes()
			r := httptest.NewRequest(http.MethodGet, "/v1/introspection/"+tt.dataset, nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)

			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d; body = %s", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
