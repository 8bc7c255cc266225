// Package executor runs a compiled or raw statement against a pooled
// upstream connection: acquire, apply the statement timeout, execute,
// buffer rows into a columnar result capped at guard.max_rows, and release,
// per spec.md §4.8.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/setupranali/gateway/pkg/apierrors"
)

// Rows is the minimal cursor interface an upstream driver must satisfy.
// database/sql.Rows and pgx.Rows (thinly wrapped) both implement this
// shape, so pkg/source's adapters can hand either straight through.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Columns() ([]string, error)
	Err() error
	Close() error
}

// Conn is one checked-out upstream connection.
type Conn interface {
	// Query runs sql with args and returns a row cursor.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	// ApplyTimeout issues whatever session-level statement times out the
	// dialect supports. A no-op is acceptable for dialects without one.
	ApplyTimeout(ctx context.Context, d time.Duration) error
	// Release returns the connection to its pool.
	Release()
}

// Pool hands out Conns for one source. Implemented concretely by
// pkg/source's per-kind adapters.
type Pool interface {
	Acquire(ctx context.Context) (Conn, error)
}

// QueryResult is the columnar shape returned to callers and cached,
// matching spec.md §3's result envelope.
type QueryResult struct {
	Columns    []string
	Rows       [][]any
	RowCount   int
	Truncated  bool
	DurationMS int64
}

// Options controls one execution.
type Options struct {
	StatementTimeout time.Duration
	MaxRows          int
	// Idempotent marks the statement safe to retry on transient upstream
	// failure (true for every read path; batch/raw SELECT are always
	// idempotent, so this is effectively always true today but is kept
	// explicit for callers that may one day execute writes).
	Idempotent bool
}

// Execute acquires a connection from pool, applies the statement timeout,
// runs sql, and buffers up to opts.MaxRows rows before releasing the
// connection. When more rows are available than MaxRows, the cursor is
// closed early and Truncated is set, per spec.md §4.8's guard interaction.
//
// KindUpstreamBusy failures (no connection available) are retried with
// bounded exponential backoff, at most 4 tries, when opts.Idempotent is true.
// Every other error, including KindUpstreamError, is returned without retry.
func Execute(ctx context.Context, pool Pool, sql string, args []any, opts Options) (QueryResult, error) {
	if opts.Idempotent {
		return backoff.Retry(ctx, func() (QueryResult, error) {
			res, err := execOnce(ctx, pool, sql, args, opts)
			if err != nil && isRetryable(err) {
				return QueryResult{}, err
			}
			if err != nil {
				return QueryResult{}, backoff.Permanent(err)
			}
			return res, nil
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(4))
	}
	return execOnce(ctx, pool, sql, args, opts)
}

func execOnce(ctx context.Context, pool Pool, sql string, args []any, opts Options) (QueryResult, error) {
	start := time.Now()

	execCtx := ctx
	var cancel context.CancelFunc
	if opts.StatementTimeout > 0 {
		execCtx, cancel = context.WithTimeout(ctx, opts.StatementTimeout)
		defer cancel()
	}

	conn, err := pool.Acquire(execCtx)
	if err != nil {
		return QueryResult{}, wrapAcquireErr(err)
	}
	defer conn.Release()

	if opts.StatementTimeout > 0 {
		if err := conn.ApplyTimeout(execCtx, opts.StatementTimeout); err != nil {
			return QueryResult{}, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal,
				"failed to apply statement timeout").Wrap(err)
		}
	}

	rows, err := conn.Query(execCtx, sql, args...)
	if err != nil {
		return QueryResult{}, wrapQueryErr(execCtx, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return QueryResult{}, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal, "failed to read columns").Wrap(err)
	}

	result := QueryResult{Columns: cols}
	maxRows := opts.MaxRows
	if maxRows <= 0 {
		maxRows = 1
	}

	for rows.Next() {
		if result.RowCount >= maxRows {
			result.Truncated = true
			break
		}
		scanned, err := scanRow(rows, len(cols))
		if err != nil {
			return QueryResult{}, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal, "failed to scan row").Wrap(err)
		}
		result.Rows = append(result.Rows, scanned)
		result.RowCount++
	}
	if err := rows.Err(); err != nil {
		return QueryResult{}, wrapQueryErr(execCtx, err)
	}

	result.DurationMS = time.Since(start).Milliseconds()
	return result, nil
}

func scanRow(rows Rows, numCols int) ([]any, error) {
	dest := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range dest {
		if b, ok := v.([]byte); ok {
			dest[i] = string(b)
		}
	}
	return dest, nil
}

func wrapAcquireErr(err error) error {
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierrors.New(apierrors.KindUpstreamBusy, apierrors.CodeUpstreamBusy, "no upstream connection available").Wrap(err)
}

func wrapQueryErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return apierrors.New(apierrors.KindUpstreamTimeout, apierrors.CodeUpstreamTimeout,
			fmt.Sprintf("query exceeded its statement timeout: %v", ctx.Err()))
	}
	var apiErr *apierrors.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal, "upstream query failed").Wrap(err)
}

func isRetryable(err error) bool {
	var apiErr *apierrors.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Kind == apierrors.KindUpstreamBusy
}
