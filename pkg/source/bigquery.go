package source

import (
	"context"
	"time"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/executor"
)

// BigQueryPool adapts a bigquery.Client to executor.Pool. BigQuery has no
// connection-per-query model: every query is an asynchronous job against
// one client. Pool.Acquire instead takes a slot from a bounded semaphore,
// which plays the same admission-control role a real connection pool
// would (spec.md §4.7's "HTTP-backed warehouses: small" pool sizing).
type BigQueryPool struct {
	client *bigquery.Client
	sem    chan struct{}
	maxWait time.Duration
}

// NewBigQueryPool bounds concurrent BigQuery jobs at size.
func NewBigQueryPool(client *bigquery.Client, size int, maxWait time.Duration) *BigQueryPool {
	if size <= 0 {
		size = 1
	}
	return &BigQueryPool{client: client, sem: make(chan struct{}, size), maxWait: maxWait}
}

// Acquire blocks until a job slot is free or maxWait elapses.
func (p *BigQueryPool) Acquire(ctx context.Context) (executor.Conn, error) {
	waitCtx, cancel := withWaitDeadline(ctx, p.maxWait)
	defer cancel()

	select {
	case p.sem <- struct{}{}:
		return &bigQueryConn{client: p.client, release: func() { <-p.sem }}, nil
	case <-waitCtx.Done():
		return nil, errUpstreamBusy(waitCtx.Err())
	}
}

// Close releases the underlying client.
func (p *BigQueryPool) Close() error {
	return p.client.Close()
}

type bigQueryConn struct {
	client  *bigquery.Client
	release func()
}

func (c *bigQueryConn) Query(ctx context.Context, sql string, args ...any) (executor.Rows, error) {
	q := c.client.Query(sql)
	for _, a := range args {
		q.Parameters = append(q.Parameters, bigquery.QueryParameter{Value: a})
	}
	it, err := q.Read(ctx)
	if err != nil {
		return nil, err
	}
	return &bigQueryRows{it: it}, nil
}

// ApplyTimeout is a no-op: BigQuery's job deadline is set via the query's
// context, already bounded by the caller in Query.
func (c *bigQueryConn) ApplyTimeout(ctx context.Context, d time.Duration) error { return nil }

func (c *bigQueryConn) Release() { c.release() }

// bigQueryRows adapts bigquery.RowIterator (pull-by-Next-returning-error,
// not Next-returning-bool) to executor.Rows.
type bigQueryRows struct {
	it     *bigquery.RowIterator
	cols   []string
	next   []bigquery.Value
	done   bool
	err    error
}

func (r *bigQueryRows) Next() bool {
	if r.done {
		return false
	}
	var row []bigquery.Value
	err := r.it.Next(&row)
	if err == iterator.Done {
		r.done = true
		return false
	}
	if err != nil {
		r.err = err
		r.done = true
		return false
	}
	r.next = row
	return true
}

func (r *bigQueryRows) Scan(dest ...any) error {
	if len(dest) != len(r.next) {
		return apierrors.New(apierrors.KindInternal, apierrors.CodeInternal, "bigquery row/column count mismatch")
	}
	for i, v := range r.next {
		ptr := dest[i].(*any)
		*ptr = v
	}
	return nil
}

func (r *bigQueryRows) Columns() ([]string, error) {
	if r.cols != nil {
		return r.cols, nil
	}
	schema := r.it.Schema
	cols := make([]string, len(schema))
	for i, f := range schema {
		cols[i] = f.Name
	}
	r.cols = cols
	return cols, nil
}

func (r *bigQueryRows) Err() error   { return r.err }
func (r *bigQueryRows) Close() error { return nil }
