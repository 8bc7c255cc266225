package source

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dlmiddlecote/sqlstats"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/dialect"
	"github.com/setupranali/gateway/pkg/executor"
)

// SQLPool adapts a database/sql.DB to executor.Pool, used by every driver
// that only ships a database/sql driver (MySQL, ClickHouse, DuckDB,
// SQL Server, Snowflake, Oracle, Databricks). A connection is health
// checked with the dialect's ping idiom on checkout; a source that keeps
// failing trips its circuit breaker rather than queuing checkouts behind
// a dead upstream.
type SQLPool struct {
	db      *sql.DB
	d       dialect.Descriptor
	maxWait time.Duration
	breaker *gobreaker.CircuitBreaker
}

// NewSQLPool wraps db for dialect d. maxWait bounds how long Acquire waits
// for a free connection slot before failing with ERR_UPSTREAM_BUSY.
func NewSQLPool(db *sql.DB, d dialect.Descriptor, maxWait time.Duration) *SQLPool {
	settings := gobreaker.Settings{
		Name:    string(d.Kind) + "-pool",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
	}
	return &SQLPool{
		db:      db,
		d:       d,
		maxWait: maxWait,
		breaker: gobreaker.NewCircuitBreaker(settings),
	}
}

// Collector exposes the underlying connection-pool gauges (open, in use,
// idle, wait count/duration) for the metrics registry.
func (p *SQLPool) Collector(sourceID string) prometheus.Collector {
	return sqlstats.NewStatsCollector(sourceID, p.db)
}

// Acquire checks out a connection, applying maxWait and health-checking it
// with the dialect's ping query before handing it to the caller.
func (p *SQLPool) Acquire(ctx context.Context) (executor.Conn, error) {
	waitCtx, cancel := withWaitDeadline(ctx, p.maxWait)
	defer cancel()

	result, err := p.breaker.Execute(func() (interface{}, error) {
		c, err := p.db.Conn(waitCtx)
		if err != nil {
			return nil, err
		}
		if p.d.PingQuery != "" {
			if _, err := c.ExecContext(waitCtx, p.d.PingQuery); err != nil {
				_ = c.Close()
				return nil, err
			}
		}
		return c, nil
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, errUpstreamBusy(err)
		}
		if waitCtx.Err() != nil {
			return nil, errUpstreamBusy(waitCtx.Err())
		}
		return nil, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal, "failed to acquire connection").Wrap(err)
	}

	return &sqlConn{conn: result.(*sql.Conn), d: p.d}, nil
}

// Close shuts the underlying *sql.DB down.
func (p *SQLPool) Close() error {
	return p.db.Close()
}

type sqlConn struct {
	conn *sql.Conn
	d    dialect.Descriptor
}

func (c *sqlConn) Query(ctx context.Context, query string, args ...any) (executor.Rows, error) {
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c *sqlConn) ApplyTimeout(ctx context.Context, d time.Duration) error {
	if c.d.TimeoutStmt == nil {
		return nil
	}
	stmt := c.d.TimeoutStmt(int(d.Seconds()))
	if stmt == "" {
		return nil
	}
	_, err := c.conn.ExecContext(ctx, stmt)
	return err
}

func (c *sqlConn) Release() {
	_ = c.conn.Close()
}
