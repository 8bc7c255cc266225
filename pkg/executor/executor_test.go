package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/setupranali/gateway/pkg/apierrors"
)

type fakeRows struct {
	cols    []string
	data    [][]any
	idx     int
	scanErr error
}

func (r *fakeRows) Next() bool {
	if r.idx >= len(r.data) {
		return false
	}
	return true
}

func (r *fakeRows) Scan(dest ...any) error {
	if r.scanErr != nil {
		return r.scanErr
	}
	row := r.data[r.idx]
	for i, d := range dest {
		ptr := d.(*any)
		*ptr = row[i]
	}
	r.idx++
	return nil
}

func (r *fakeRows) Columns() ([]string, error) { return r.cols, nil }
func (r *fakeRows) Err() error                  { return nil }
func (r *fakeRows) Close() error                { return nil }

type fakeConn struct {
	rows         *fakeRows
	queryErr     error
	timeoutCalls int
	released     bool
}

func (c *fakeConn) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	if c.queryErr != nil {
		return nil, c.queryErr
	}
	return c.rows, nil
}

func (c *fakeConn) ApplyTimeout(ctx context.Context, d time.Duration) error {
	c.timeoutCalls++
	return nil
}

func (c *fakeConn) Release() { c.released = true }

type fakePool struct {
	conn       *fakeConn
	acquireErr error
	acquired   int
}

func (p *fakePool) Acquire(ctx context.Context) (Conn, error) {
	p.acquired++
	if p.acquireErr != nil {
		return nil, p.acquireErr
	}
	return p.conn, nil
}

func TestExecuteReturnsColumnarResult(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		cols: []string{"region", "revenue"},
		data: [][]any{{"us", 100}, {"eu", 200}},
	}}
	pool := &fakePool{conn: conn}

	res, err := Execute(context.Background(), pool, "SELECT region, revenue FROM orders", nil, Options{MaxRows: 10})

	require.NoError(t, err)
	assert.Equal(t, []string{"region", "revenue"}, res.Columns)
	assert.Equal(t, 2, res.RowCount)
	assert.False(t, res.Truncated)
	assert.True(t, conn.released)
	assert.Equal(t, 0, conn.timeoutCalls)
}

func TestExecuteAppliesStatementTimeoutWhenSet(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{cols: []string{"c"}, data: [][]any{{1}}}}
	pool := &fakePool{conn: conn}

	_, err := Execute(context.Background(), pool, "SELECT 1", nil, Options{MaxRows: 10, StatementTimeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, 1, conn.timeoutCalls)
}

func TestExecuteTruncatesAtMaxRows(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		cols: []string{"n"},
		data: [][]any{{1}, {2}, {3}, {4}},
	}}
	pool := &fakePool{conn: conn}

	res, err := Execute(context.Background(), pool, "SELECT n FROM t", nil, Options{MaxRows: 2})

	require.NoError(t, err)
	assert.Equal(t, 2, res.RowCount)
	assert.True(t, res.Truncated)
}

func TestExecuteConvertsByteSlicesToStrings(t *testing.T) {
	conn := &fakeConn{rows: &fakeRows{
		cols: []string{"name"},
		data: [][]any{{[]byte("widget")}},
	}}
	pool := &fakePool{conn: conn}

	res, err := Execute(context.Background(), pool, "SELECT name FROM t", nil, Options{MaxRows: 10})

	require.NoError(t, err)
	assert.Equal(t, "widget", res.Rows[0][0])
}

func TestExecuteWrapsAcquireFailureAsUpstreamBusy(t *testing.T) {
	pool := &fakePool{acquireErr: assert.AnError}

	_, err := Execute(context.Background(), pool, "SELECT 1", nil, Options{MaxRows: 10})

	var apiErr *apierrors.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, apierrors.KindUpstreamBusy, apiErr.Kind)
}

func TestExecuteRetriesIdempotentOnUpstreamBusy(t *testing.T) {
	calls := 0
	pool := &countingFakePool{
		acquire: func(ctx context.Context) (Conn, error) {
			calls++
			if calls < 2 {
				return nil, apierrors.New(apierrors.KindUpstreamBusy, apierrors.CodeUpstreamBusy, "busy")
			}
			return &fakeConn{rows: &fakeRows{cols: []string{"c"}, data: [][]any{{1}}}}, nil
		},
	}

	res, err := Execute(context.Background(), pool, "SELECT 1", nil, Options{MaxRows: 10, Idempotent: true})

	require.NoError(t, err)
	assert.Equal(t, 1, res.RowCount)
	assert.GreaterOrEqual(t, calls, 2)
}

func TestExecuteDoesNotRetryNonIdempotentOnBusy(t *testing.T) {
	calls := 0
	pool := &countingFakePool{
		acquire: func(ctx context.Context) (Conn, error) {
			calls++
			return nil, apierrors.New(apierrors.KindUpstreamBusy, apierrors.CodeUpstreamBusy, "busy")
		},
	}

	_, err := Execute(context.Background(), pool, "SELECT 1", nil, Options{MaxRows: 10, Idempotent: false})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

type countingFakePool struct {
	acquire func(ctx context.Context) (Conn, error)
}

func (p *countingFakePool) Acquire(ctx context.Context) (Conn, error) { return p.acquire(ctx) }
