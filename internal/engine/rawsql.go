package engine

import (
	"context"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/executor"
	"github.com/setupranali/gateway/pkg/rls"
	"github.com/setupranali/gateway/pkg/sqlgate"
)

// RawSQL runs a caller-supplied read-only SELECT against datasetID's
// source, wrapped in the dataset's RLS predicate. It is never cached: the
// wire format defines no fingerprint over an arbitrary SQL body.
func (e *Engine) RawSQL(ctx context.Context, datasetID, userSQL, tenant string, isAdmin bool) (executor.QueryResult, error) {
	if err := sqlgate.Check(userSQL); err != nil {
		return executor.QueryResult{}, err
	}

	snap := e.Catalog.Current()
	ds, ok := snap.Dataset(datasetID)
	if !ok {
		return executor.QueryResult{}, apierrors.NotFound("dataset " + datasetID)
	}

	entry, err := e.sourceFor(ds)
	if err != nil {
		return executor.QueryResult{}, err
	}

	wrapped, params, err := rls.WrapRawSQL(userSQL, ds, tenant, isAdmin, entry.Descriptor)
	if err != nil {
		return executor.QueryResult{}, err
	}

	return executor.Execute(ctx, entry.Pool, wrapped, params, executor.Options{
		StatementTimeout: e.StatementTimeout,
		MaxRows:          e.Limits.MaxRows,
		Idempotent:       true,
	})
}
