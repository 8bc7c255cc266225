package source

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/executor"
)

// PgxPool adapts a pgxpool.Pool to executor.Pool, used for every
// wire-compatible Postgres dialect (Postgres itself, CockroachDB,
// Redshift). pgxpool already health-checks and queues checkouts
// internally, so this adapter only needs to apply the wait deadline and
// translate errors into the gateway's taxonomy.
type PgxPool struct {
	pool    *pgxpool.Pool
	d       dialect.Descriptor
	maxWait time.Duration
}

// NewPgxPool wraps pool for dialect d.
func NewPgxPool(pool *pgxpool.Pool, d dialect.Descriptor, maxWait time.Duration) *PgxPool {
	return &PgxPool{pool: pool, d: d, maxWait: maxWait}
}

// Acquire checks out a pooled connection, bounded by maxWait.
func (p *PgxPool) Acquire(ctx context.Context) (executor.Conn, error) {
	waitCtx, cancel := withWaitDeadline(ctx, p.maxWait)
	defer cancel()

	conn, err := p.pool.Acquire(waitCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, errUpstreamBusy(err)
		}
		return nil, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal, "failed to acquire connection").Wrap(err)
	}
	return &pgxConn{conn: conn, d: p.d}, nil
}

// Close shuts the underlying pool down.
func (p *PgxPool) Close() error {
	p.pool.Close()
	return nil
}

type pgxConn struct {
	conn *pgxpool.Conn
	d    dialect.Descriptor
}

func (c *pgxConn) Query(ctx context.Context, sql string, args ...any) (executor.Rows, error) {
	rows, err := c.conn.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return &pgxRowsAdapter{rows: rows}, nil
}

func (c *pgxConn) ApplyTimeout(ctx context.Context, d time.Duration) error {
	if c.d.TimeoutStmt == nil {
		return nil
	}
	stmt := c.d.TimeoutStmt(int(d.Seconds()))
	if stmt == "" {
		return nil
	}
	_, err := c.conn.Exec(ctx, stmt)
	return err
}

func (c *pgxConn) Release() {
	c.conn.Release()
}

// pgxRowsAdapter adapts pgx.Rows (whose Close takes/returns nothing) to
// executor.Rows (Close() error), and synthesizes Columns() from the
// field descriptions pgx exposes instead.
type pgxRowsAdapter struct {
	rows pgx.Rows
}

func (a *pgxRowsAdapter) Next() bool                  { return a.rows.Next() }
func (a *pgxRowsAdapter) Scan(dest ...any) error       { return a.rows.Scan(dest...) }
func (a *pgxRowsAdapter) Err() error                   { return a.rows.Err() }
func (a *pgxRowsAdapter) Close() error                 { a.rows.Close(); return nil }
func (a *pgxRowsAdapter) Columns() ([]string, error) {
	fields := a.rows.FieldDescriptions()
	cols := make([]string, len(fields))
	for i, f := range fields {
		cols[i] = f.Name
	}
	return cols, nil
}
