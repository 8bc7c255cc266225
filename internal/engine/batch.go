package engine

import (
	"context"

	"github.com/setupranali/gateway/pkg/batch"
	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/executor"
)

// SubQuery is one named, possibly $ref-dependent query within a batch
// request, per spec.md §4.11.
type SubQuery struct {
	ID        string
	DependsOn []string
	Request   compiler.QueryRequest
}

// Batch runs a DAG of semantic queries, resolving $ref:<id>[<row>].<field>
// filter tokens against each dependency's materialized result before
// compiling and executing the dependent sub-query through Query.
func (e *Engine) Batch(ctx context.Context, queries []SubQuery, tenant string, isAdmin bool, opts batch.Options) (batch.Result, error) {
	reqs := make([]batch.SubRequest, 0, len(queries))

	for _, q := range queries {
		rawFilters := make(map[string]any, len(q.Request.Filters))
		for _, f := range q.Request.Filters {
			rawFilters[f.Field] = f.Value.Raw()
		}

		reqs = append(reqs, batch.SubRequest{
			ID:        q.ID,
			DependsOn: q.DependsOn,
			Filters:   rawFilters,
			Run: func(ctx context.Context, resolved map[string]any) (executor.QueryResult, error) {
				resolvedReq := q.Request
				resolvedReq.Filters = make([]compiler.Filter, len(q.Request.Filters))
				for i, f := range q.Request.Filters {
					v := f.Value
					if rv, ok := resolved[f.Field]; ok {
						v = compiler.NewFilterValue(rv)
					}
					resolvedReq.Filters[i] = compiler.Filter{Field: f.Field, Op: f.Op, Value: v}
				}

				res, _, err := e.Query(ctx, resolvedReq, tenant, isAdmin, false)
				return res, err
			},
		})
	}

	return batch.Run(ctx, reqs, opts)
}
