package fingerprint

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/compiler"
)

func TestComputeIsInvariantToFieldReordering(t *testing.T) {
	req1 := compiler.QueryRequest{
		Dataset:    "orders",
		Dimensions: []string{"region", "product"},
		Metrics:    []string{"revenue", "units"},
	}
	req2 := compiler.QueryRequest{
		Dataset:    "orders",
		Dimensions: []string{"product", "region"},
		Metrics:    []string{"units", "revenue"},
	}

	require.Equal(t, Compute(req1, "acme", 1), Compute(req2, "acme", 1))
}

func TestComputeIsInvariantToFilterReordering(t *testing.T) {
	req1 := compiler.QueryRequest{
		Dataset: "orders",
		Metrics: []string{"revenue"},
		Filters: []compiler.Filter{
			{Field: "region", Op: compiler.OpEq, Value: compiler.NewFilterValue("us")},
			{Field: "product", Op: compiler.OpEq, Value: compiler.NewFilterValue("widget")},
		},
	}
	req2 := compiler.QueryRequest{
		Dataset: "orders",
		Metrics: []string{"revenue"},
		Filters: []compiler.Filter{
			{Field: "product", Op: compiler.OpEq, Value: compiler.NewFilterValue("widget")},
			{Field: "region", Op: compiler.OpEq, Value: compiler.NewFilterValue("us")},
		},
	}

	require.Equal(t, Compute(req1, "acme", 1), Compute(req2, "acme", 1))
}

func TestComputeInListIsInvariantToOrderAndDuplicates(t *testing.T) {
	req1 := compiler.QueryRequest{
		Dataset: "orders",
		Metrics: []string{"revenue"},
		Filters: []compiler.Filter{
			{Field: "region", Op: compiler.OpIn, Value: compiler.NewFilterValue([]any{"us", "ca", "us"})},
		},
	}
	req2 := compiler.QueryRequest{
		Dataset: "orders",
		Metrics: []string{"revenue"},
		Filters: []compiler.Filter{
			{Field: "region", Op: compiler.OpIn, Value: compiler.NewFilterValue([]any{"ca", "us"})},
		},
	}

	require.Equal(t, Compute(req1, "acme", 1), Compute(req2, "acme", 1))
}

func TestComputeDiffersByTenant(t *testing.T) {
	req := compiler.QueryRequest{Dataset: "orders", Metrics: []string{"revenue"}}
	assert.NotEqual(t, Compute(req, "acme", 1), Compute(req, "globex", 1))
}

func TestComputeDiffersByCatalogGeneration(t *testing.T) {
	req := compiler.QueryRequest{Dataset: "orders", Metrics: []string{"revenue"}}
	assert.NotEqual(t, Compute(req, "acme", 1), Compute(req, "acme", 2))
}

func TestComputeDiffersByLimitOffset(t *testing.T) {
	req1 := compiler.QueryRequest{Dataset: "orders", Metrics: []string{"revenue"}, Limit: 10}
	req2 := compiler.QueryRequest{Dataset: "orders", Metrics: []string{"revenue"}, Limit: 20}
	assert.NotEqual(t, Compute(req1, "acme", 1), Compute(req2, "acme", 1))
}
