package engine

import (
	"context"

	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/executor"
	"github.com/setupranali/gateway/pkg/fingerprint"
	"github.com/setupranali/gateway/pkg/guard"
)

// Query compiles and (subject to caching) executes a semantic query
// request, returning its result and whether it was served from cache.
// bypassCache corresponds to a Cache-Control: no-cache request header;
// the fresh result is still stored so subsequent requests can hit.
func (e *Engine) Query(ctx context.Context, req compiler.QueryRequest, tenant string, isAdmin bool, bypassCache bool) (executor.QueryResult, bool, error) {
	snap := e.Catalog.Current()

	ds, err := guard.Check(snap, guardRequest(req), e.Limits)
	if err != nil {
		return executor.QueryResult{}, false, err
	}

	req.Limit = guard.EffectiveLimit(req.Limit, e.Limits.MaxRows)

	entry, err := e.sourceFor(ds)
	if err != nil {
		return executor.QueryResult{}, false, err
	}

	compiled, err := compiler.Compile(ds, req, tenant, isAdmin, entry.Descriptor, e.Limits.MaxRows)
	if err != nil {
		return executor.QueryResult{}, false, err
	}

	fp := fingerprint.Compute(req, tenant, snap.Generation)

	return e.Cache.GetOrCompute(ctx, fp, ds.ID, e.DefaultTTL, bypassCache, func(ctx context.Context) (executor.QueryResult, int64, error) {
		res, err := executor.Execute(ctx, entry.Pool, compiled.SQL, compiled.Params, executor.Options{
			StatementTimeout: e.StatementTimeout,
			MaxRows:          req.Limit,
			Idempotent:       true,
		})
		if err != nil {
			return executor.QueryResult{}, 0, err
		}
		return res, approxSize(res), nil
	})
}

// InvalidateDataset drops every cached result for a dataset, used by the
// catalog reload path and the admin cache-clear endpoint's scoped form.
func (e *Engine) InvalidateDataset(datasetID string) {
	e.Cache.InvalidateDataset(datasetID)
}

// ClearCache empties the entire result cache.
func (e *Engine) ClearCache() {
	e.Cache.Clear()
}
