package guard

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/catalog"
)

func testSnapshot(t *testing.T) *catalog.Snapshot {
	t.Helper()
	snap, err := catalog.NewSnapshot(1, []*catalog.Dataset{
		{
			ID:       "orders",
			SourceID: "src-1",
			Table:    "orders",
			Dimensions: []catalog.Dimension{
				{Name: "region", Expr: "region", Type: catalog.TypeString},
			},
			Metrics: []catalog.Metric{
				{Name: "revenue", Expr: "SUM(amount)"},
			},
		},
	})
	require.NoError(t, err)
	return snap
}

func defaultLimits() Limits {
	return Limits{
		MaxDimensions: 20, MaxMetrics: 20, MaxFilters: 50, MaxFilterDepth: 4,
		MaxRows: 100000, QueryTimeout: 30 * time.Second,
	}
}

func TestCheckAcceptsValidRequest(t *testing.T) {
	snap := testSnapshot(t)
	ds, err := Check(snap, Request{Dataset: "orders", Dimensions: []string{"region"}, Metrics: []string{"revenue"}}, defaultLimits())
	require.NoError(t, err)
	require.Equal(t, "orders", ds.ID)
}

func TestCheckRejectsUnknownDataset(t *testing.T) {
	snap := testSnapshot(t)
	_, err := Check(snap, Request{Dataset: "missing", Metrics: []string{"revenue"}}, defaultLimits())
	require.Error(t, err)
}

func TestCheckRejectsEmptySelection(t *testing.T) {
	snap := testSnapshot(t)
	_, err := Check(snap, Request{Dataset: "orders"}, defaultLimits())
	require.Error(t, err)
}

func TestCheckRejectsUnknownDimension(t *testing.T) {
	snap := testSnapshot(t)
	_, err := Check(snap, Request{Dataset: "orders", Dimensions: []string{"nope"}}, defaultLimits())
	require.Error(t, err)
}

func TestCheckRejectsOverMaxDimensions(t *testing.T) {
	snap := testSnapshot(t)
	limits := defaultLimits()
	limits.MaxDimensions = 0
	_, err := Check(snap, Request{Dataset: "orders", Dimensions: []string{"region"}, Metrics: []string{"revenue"}}, limits)
	require.NoError(t, err) // 0 means unset/no cap in this helper

	limits.MaxDimensions = 1
	_, err = Check(snap, Request{Dataset: "orders", Dimensions: []string{"region", "region2"}, Metrics: []string{"revenue"}}, limits)
	require.Error(t, err)
}

func TestEffectiveLimitCapsAtMaxRows(t *testing.T) {
	require.Equal(t, 100, EffectiveLimit(500, 100))
	require.Equal(t, 50, EffectiveLimit(50, 100))
	require.Equal(t, 100, EffectiveLimit(0, 100))
}
