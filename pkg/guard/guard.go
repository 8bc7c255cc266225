// Package guard enforces the configured bound caps against a query request
// before any compilation or upstream work happens, per spec.md §4.3.
package guard

import (
	"time"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/catalog"
)

// Limits are the configured caps checked before compilation.
type Limits struct {
	MaxDimensions int
	MaxMetrics    int
	MaxFilters    int
	MaxFilterDepth int
	MaxRows       int
	QueryTimeout  time.Duration
}

// Request is the minimal shape guards need from a semantic query request —
// decoupled from pkg/compiler's richer type so guard has no dependency on
// the compiler package.
type Request struct {
	Dataset    string
	Dimensions []string
	Metrics    []string
	FilterCount int
	FilterDepth int
	Limit      int
}

// Check runs every pre-compilation guard in a fixed order and returns the
// first violation, or nil. Dataset existence is checked first since every
// other check needs the snapshot.
func Check(snap *catalog.Snapshot, req Request, limits Limits) (*catalog.Dataset, error) {
	ds, ok := snap.Dataset(req.Dataset)
	if !ok {
		return nil, apierrors.NotFound("dataset " + req.Dataset)
	}

	if len(req.Dimensions) == 0 && len(req.Metrics) == 0 {
		return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeInvalidRequest,
			"at least one of dimensions or metrics is required")
	}

	if limits.MaxDimensions > 0 && len(req.Dimensions) > limits.MaxDimensions {
		return nil, apierrors.GuardExceeded(apierrors.CodeGuardDimensions, "dimensions", limits.MaxDimensions)
	}
	if limits.MaxMetrics > 0 && len(req.Metrics) > limits.MaxMetrics {
		return nil, apierrors.GuardExceeded(apierrors.CodeGuardMetrics, "metrics", limits.MaxMetrics)
	}
	if limits.MaxFilters > 0 && req.FilterCount > limits.MaxFilters {
		return nil, apierrors.GuardExceeded(apierrors.CodeGuardFilters, "filters", limits.MaxFilters)
	}
	if limits.MaxFilterDepth > 0 && req.FilterDepth > limits.MaxFilterDepth {
		return nil, apierrors.GuardExceeded(apierrors.CodeGuardFilterDepth, "filter depth", limits.MaxFilterDepth)
	}
	if limits.MaxRows > 0 && req.Limit > limits.MaxRows {
		return nil, apierrors.GuardExceeded(apierrors.CodeGuardRows, "limit", limits.MaxRows)
	}

	for _, name := range req.Dimensions {
		if _, ok := ds.Dimension(name); !ok {
			return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeUnknownField, "unknown dimension: "+name)
		}
	}
	for _, name := range req.Metrics {
		if _, ok := ds.Metric(name); !ok {
			return nil, apierrors.New(apierrors.KindBadRequest, apierrors.CodeUnknownField, "unknown metric: "+name)
		}
	}

	return ds, nil
}

// EffectiveLimit returns min(requested, guard.max_rows), per spec.md §4.4's
// "LIMIT is min(request.limit, guard.max_rows)".
func EffectiveLimit(requested, maxRows int) int {
	if maxRows > 0 && (requested <= 0 || requested > maxRows) {
		return maxRows
	}
	return requested
}
