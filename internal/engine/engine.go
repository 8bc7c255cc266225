// Package engine wires the request pipeline together: guard, compiler, rls,
// the result cache, the executor, streaming dispatch, and batch scheduling,
// against the live catalog snapshot and source registry, per spec.md §5.
package engine

import (
	"fmt"
	"time"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/cache"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/executor"
	"github.com/setupranali/gateway/pkg/guard"
	"github.com/setupranali/gateway/pkg/source"
)

// Engine is the gateway's request orchestrator. One Engine is built at
// startup and shared across every request goroutine; all of its fields are
// safe for concurrent use.
type Engine struct {
	Catalog *catalog.Registry
	Sources *source.Registry
	Cache   *cache.Cache[executor.QueryResult]

	Limits           guard.Limits
	DefaultTTL       time.Duration
	StatementTimeout time.Duration
}

// New builds an Engine from its already-constructed collaborators.
func New(cat *catalog.Registry, sources *source.Registry, c *cache.Cache[executor.QueryResult], limits guard.Limits, defaultTTL, statementTimeout time.Duration) *Engine {
	return &Engine{
		Catalog:          cat,
		Sources:          sources,
		Cache:            c,
		Limits:           limits,
		DefaultTTL:       defaultTTL,
		StatementTimeout: statementTimeout,
	}
}

// sourceFor resolves a dataset's upstream source entry, translating a
// missing or unregistered source into a stable, non-leaking error: the
// catalog can reference a source id that was since removed from the
// registry (e.g. a failed credential rotation), which is an operator-facing
// problem, not a client mistake.
func (e *Engine) sourceFor(ds *catalog.Dataset) (*source.Entry, error) {
	entry, ok := e.Sources.Get(ds.SourceID)
	if !ok {
		return nil, apierrors.New(apierrors.KindInternal, apierrors.CodeSourceNotFound,
			fmt.Sprintf("source %q for dataset %q is not registered", ds.SourceID, ds.ID))
	}
	return entry, nil
}

// filterDepth approximates a request's filter nesting for guard.max_filter_depth.
// The wire format has no recursive filter groups (pkg/compiler.Filter is
// flat), so depth only grows when a filter's value is itself a list (in,
// not_in, between); every other filter is depth 1.
func filterDepth(filters []compiler.Filter) int {
	depth := 0
	for _, f := range filters {
		d := 1
		if _, ok := f.Value.AsList(); ok {
			d = 2
		}
		if d > depth {
			depth = d
		}
	}
	return depth
}

// approxSize estimates a query result's in-memory footprint for the cache's
// byte budget. It is deliberately cheap: an exact size would require
// reflecting over every cell's dynamic type.
func approxSize(res executor.QueryResult) int64 {
	var size int64
	for _, col := range res.Columns {
		size += int64(len(col))
	}
	for _, row := range res.Rows {
		for _, cell := range row {
			switch v := cell.(type) {
			case string:
				size += int64(len(v))
			case []byte:
				size += int64(len(v))
			default:
				size += 8
			}
		}
	}
	return size
}

func guardRequest(req compiler.QueryRequest) guard.Request {
	return guard.Request{
		Dataset:     req.Dataset,
		Dimensions:  req.Dimensions,
		Metrics:     req.Metrics,
		FilterCount: len(req.Filters),
		FilterDepth: filterDepth(req.Filters),
		Limit:       req.Limit,
	}
}
