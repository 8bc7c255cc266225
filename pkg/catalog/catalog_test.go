package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ordersDataset() *Dataset {
	return &Dataset{
		ID:       "orders",
		SourceID: "src-1",
		Table:    "orders",
		Dimensions: []Dimension{
			{Name: "region", Expr: "region", Type: TypeString},
			{Name: "product", Expr: "product", Type: TypeString},
		},
		Metrics: []Metric{
			{Name: "revenue", Expr: "SUM(amount)"},
		},
		RLS: &RLSPolicy{Mode: RLSModeTenantColumn, Field: "tenant_id"},
	}
}

func TestDatasetValidate(t *testing.T) {
	d := ordersDataset()
	require.NoError(t, d.Validate())
}

func TestDatasetValidateDuplicateName(t *testing.T) {
	d := ordersDataset()
	d.Metrics = append(d.Metrics, Metric{Name: "region", Expr: "COUNT(*)"})
	require.Error(t, d.Validate())
}

func TestDatasetValidateMutuallyExclusiveSource(t *testing.T) {
	d := ordersDataset()
	d.SQL = "SELECT * FROM orders"
	require.Error(t, d.Validate())
}

func TestDatasetLookup(t *testing.T) {
	d := ordersDataset()

	dim, ok := d.Dimension("region")
	require.True(t, ok)
	assert.Equal(t, "region", dim.Expr)

	_, ok = d.Dimension("missing")
	assert.False(t, ok)

	m, ok := d.Metric("revenue")
	require.True(t, ok)
	assert.Equal(t, "SUM(amount)", m.Expr)
}

func TestRegistryReloadIsAtomicAndDoesNotAffectInFlightSnapshot(t *testing.T) {
	snap1, err := NewSnapshot(1, []*Dataset{ordersDataset()})
	require.NoError(t, err)

	reg := NewRegistry(snap1)
	held := reg.Current()

	snap2, err := NewSnapshot(2, nil)
	require.NoError(t, err)
	reg.Reload(snap2)

	assert.Equal(t, uint64(1), held.Generation)
	assert.Equal(t, uint64(2), reg.Current().Generation)
}

func TestNewSnapshotRejectsDuplicateDatasetID(t *testing.T) {
	d1 := ordersDataset()
	d2 := ordersDataset()
	_, err := NewSnapshot(1, []*Dataset{d1, d2})
	require.Error(t, err)
}
