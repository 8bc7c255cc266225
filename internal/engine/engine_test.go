package engine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/batch"
	"github.com/setupranali/gateway/pkg/cache"
	"github.com/setupranali/gateway/pkg/catalog"
	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/executor"
	"github.com/setupranali/gateway/pkg/guard"
	"github.com/setupranali/gateway/pkg/source"
	"github.com/setupranali/gateway/pkg/stream"
)

type fakeRows struct {
	cols []string
	data [][]any
	idx  int
}

func (r *fakeRows) Next() bool {
	return r.idx < len(r.data)
}

func (r *fakeRows) Scan(dest ...any) error {
	row := r.data[r.idx]
	for i, d := range dest {
		*(d.(*any)) = row[i]
	}
	r.idx++
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Err() error                  { return nil }
func (r *fakeRows) Close() error                { return nil }

type fakeConn struct {
	rows *fakeRows
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (executor.Rows, error) {
	return c.rows, nil
}
func (c *fakeConn) ApplyTimeout(ctx context.Context, d time.Duration) error { return nil }
func (c *fakeConn) Release()                                               {}

type fakePool struct {
	rows  [][]any
	cols  []string
	calls int
}

func (p *fakePool) Acquire(ctx context.Context) (executor.Conn, error) {
	p.calls++
	return &fakeConn{rows: &fakeRows{cols: p.cols, data: p.rows}}, nil
}

func testDataset() *catalog.Dataset {
	return &catalog.Dataset{
		ID:       "orders",
		SourceID: "primary",
		Table:    "orders",
		Dimensions: []catalog.Dimension{
			{Name: "region", Expr: "region", Type: catalog.TypeString},
		},
		Metrics: []catalog.Metric{
			{Name: "revenue", Expr: "SUM(amount)"},
		},
		RLS: &catalog.RLSPolicy{Mode: catalog.RLSModeTenantColumn, Field: "tenant_id"},
	}
}

func newTestEngine(t *testing.T, pool *fakePool) *Engine {
	t.Helper()
	snap, err := catalog.NewSnapshot(1, []*catalog.Dataset{testDataset()})
	require.NoError(t, err)
	reg := catalog.NewRegistry(snap)

	sources := source.NewRegistry()
	pgDialect, _ := dialect.Get(dialect.Postgres)
	sources.Add(&source.Entry{ID: "primary", Kind: dialect.Postgres, Descriptor: pgDialect, Pool: pool})

	return New(reg, sources, cache.New[executor.QueryResult](1<<20, 1<<16), guard.Limits{
		MaxDimensions: 20, MaxMetrics: 20, MaxFilters: 50, MaxFilterDepth: 4, MaxRows: 1000,
	}, time.Minute, 5*time.Second)
}

func baseRequest() compiler.QueryRequest {
	return compiler.QueryRequest{
		Dataset:    "orders",
		Dimensions: []string{"region"},
		Metrics:    []string{"revenue"},
	}
}

func TestQueryExecutesAndCachesByFingerprint(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}}}
	e := newTestEngine(t, pool)

	res, cached, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, res.RowCount)
	assert.Equal(t, 1, pool.calls)

	res2, cached2, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	assert.True(t, cached2)
	assert.Equal(t, res, res2)
	assert.Equal(t, 1, pool.calls, "second identical request must not hit the upstream pool again")
}

func TestQueryBypassCacheStillPopulatesCache(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}}}
	e := newTestEngine(t, pool)

	_, cached, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, true)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 1, pool.calls)

	_, cached2, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	assert.True(t, cached2)
	assert.Equal(t, 1, pool.calls)
}

func TestQueryDifferentTenantsDoNotShareCacheEntries(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}}}
	e := newTestEngine(t, pool)

	_, _, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	_, cached, err := e.Query(context.Background(), baseRequest(), "tenant-b", false, false)
	require.NoError(t, err)

	assert.False(t, cached)
	assert.Equal(t, 2, pool.calls)
}

func TestQueryRejectsUnknownDataset(t *testing.T) {
	pool := &fakePool{}
	e := newTestEngine(t, pool)

	req := baseRequest()
	req.Dataset = "does-not-exist"

	_, _, err := e.Query(context.Background(), req, "tenant-a", false, false)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindNotFound, apiErr.Kind)
	assert.Equal(t, 0, pool.calls)
}

func TestQueryRejectsGuardExceeded(t *testing.T) {
	pool := &fakePool{}
	e := newTestEngine(t, pool)
	e.Limits.MaxDimensions = 1

	req := baseRequest()
	req.Dimensions = []string{"region", "region"}

	_, _, err := e.Query(context.Background(), req, "tenant-a", false, false)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindGuardExceeded, apiErr.Kind)
}

func TestInvalidateDatasetDropsCachedResult(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}}}
	e := newTestEngine(t, pool)

	_, _, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	e.InvalidateDataset("orders")

	_, cached, err := e.Query(context.Background(), baseRequest(), "tenant-a", false, false)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, 2, pool.calls)
}

func TestRawSQLRejectsNonSelect(t *testing.T) {
	pool := &fakePool{}
	e := newTestEngine(t, pool)

	_, err := e.RawSQL(context.Background(), "orders", "DROP TABLE orders", "tenant-a", false)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindSQLRejected, apiErr.Kind)
}

func TestRawSQLWrapsTenantPredicate(t *testing.T) {
	pool := &fakePool{cols: []string{"region"}, rows: [][]any{{"us"}}}
	e := newTestEngine(t, pool)

	res, err := e.RawSQL(context.Background(), "orders", "SELECT region FROM orders", "tenant-a", false)
	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
}

func TestRawSQLRequiresRLSPolicyForNonAdmin(t *testing.T) {
	pool := &fakePool{}
	e := newTestEngine(t, pool)
	ds, _ := e.Catalog.Current().Dataset("orders")
	ds.RLS = nil

	_, err := e.RawSQL(context.Background(), "orders", "SELECT 1", "tenant-a", false)
	require.Error(t, err)

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindRLSViolation, apiErr.Kind)
}

type fakeStreamWriter struct {
	metadata  stream.Metadata
	chunks    [][][]any
	complete  *stream.Complete
	errFrame  *stream.ErrorFrame
	heartbeat int
}

func (w *fakeStreamWriter) WriteMetadata(m stream.Metadata) error { w.metadata = m; return nil }
func (w *fakeStreamWriter) WriteChunk(rows [][]any) error         { w.chunks = append(w.chunks, rows); return nil }
func (w *fakeStreamWriter) WriteProgress(stream.Progress) error   { return nil }
func (w *fakeStreamWriter) WriteComplete(c stream.Complete) error { w.complete = &c; return nil }
func (w *fakeStreamWriter) WriteError(e stream.ErrorFrame) error  { w.errFrame = &e; return nil }
func (w *fakeStreamWriter) Heartbeat() error                      { w.heartbeat++; return nil }

func TestStreamDispatchesRowsAndCompletes(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}, {"eu", 50.0}}}
	e := newTestEngine(t, pool)
	w := &fakeStreamWriter{}

	err := e.Stream(context.Background(), w, baseRequest(), "tenant-a", false, stream.Options{ChunkSize: 10})
	require.NoError(t, err)
	require.NotNil(t, w.complete)
	assert.Equal(t, 2, w.complete.TotalRows)
	assert.Nil(t, w.errFrame)
}

func TestStreamSurfacesGuardFailureAsErrorFrame(t *testing.T) {
	pool := &fakePool{}
	e := newTestEngine(t, pool)
	w := &fakeStreamWriter{}

	req := baseRequest()
	req.Dataset = "nope"

	err := e.Stream(context.Background(), w, req, "tenant-a", false, stream.Options{})
	require.Error(t, err)
	require.NotNil(t, w.errFrame)
}

func TestBatchResolvesRefBetweenSubQueries(t *testing.T) {
	pool := &fakePool{cols: []string{"region", "revenue"}, rows: [][]any{{"us", 100.0}}}
	e := newTestEngine(t, pool)

	queries := []SubQuery{
		{
			ID:      "top_region",
			Request: baseRequest(),
		},
		{
			ID:        "detail",
			DependsOn: []string{"top_region"},
			Request: compiler.QueryRequest{
				Dataset:    "orders",
				Dimensions: []string{"region"},
				Metrics:    []string{"revenue"},
				Filters: []compiler.Filter{
					{Field: "region", Op: compiler.OpEq, Value: compiler.NewFilterValue("$ref:top_region[0].region")},
				},
			},
		},
	}

	result, err := e.Batch(context.Background(), queries, "tenant-a", false, batch.Options{MaxParallel: 2})
	require.NoError(t, err)

	top := result.Results["top_region"]
	assert.Equal(t, batch.StatusSuccess, top.Status)
	detail := result.Results["detail"]
	assert.Equal(t, batch.StatusSuccess, detail.Status)
}
