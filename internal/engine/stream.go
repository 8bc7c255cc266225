package engine

import (
	"context"

	"github.com/setupranali/gateway/pkg/apierrors"
	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/guard"
	"github.com/setupranali/gateway/pkg/stream"
)

// Stream compiles req and dispatches its rows to w chunk by chunk, per
// spec.md §4.10. Unlike Query, it never buffers the full result set and
// never consults the cache: the connection is held live for the duration
// of the stream.
//
// Any failure, including one that happens before a connection is even
// acquired, is surfaced as a terminal ErrorFrame on w rather than only a
// Go error, so a client already mid-stream sees a well-formed close.
func (e *Engine) Stream(ctx context.Context, w stream.Writer, req compiler.QueryRequest, tenant string, isAdmin bool, opts stream.Options) error {
	snap := e.Catalog.Current()

	ds, err := guard.Check(snap, guardRequest(req), e.Limits)
	if err != nil {
		return e.failStream(w, err)
	}

	req.Limit = guard.EffectiveLimit(req.Limit, e.Limits.MaxRows)

	entry, err := e.sourceFor(ds)
	if err != nil {
		return e.failStream(w, err)
	}

	compiled, err := compiler.Compile(ds, req, tenant, isAdmin, entry.Descriptor, e.Limits.MaxRows)
	if err != nil {
		return e.failStream(w, err)
	}

	conn, err := entry.Pool.Acquire(ctx)
	if err != nil {
		return e.failStream(w, apierrors.New(apierrors.KindUpstreamBusy, apierrors.CodeUpstreamBusy,
			"no upstream connection available").Wrap(err))
	}
	defer conn.Release()

	if e.StatementTimeout > 0 {
		if err := conn.ApplyTimeout(ctx, e.StatementTimeout); err != nil {
			return e.failStream(w, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal,
				"failed to apply statement timeout").Wrap(err))
		}
	}

	rows, err := conn.Query(ctx, compiled.SQL, compiled.Params...)
	if err != nil {
		return e.failStream(w, apierrors.New(apierrors.KindUpstreamError, apierrors.CodeInternal,
			"upstream query failed").Wrap(err))
	}
	defer rows.Close()

	if opts.Dataset == "" {
		opts.Dataset = ds.ID
	}
	if opts.MaxRows <= 0 {
		opts.MaxRows = req.Limit
	}

	return stream.Dispatch(ctx, w, rows, opts)
}

func (e *Engine) failStream(w stream.Writer, err error) error {
	_, body := apierrors.ToBody(err)
	_ = w.WriteError(stream.ErrorFrame{Code: body.Error.Code, Message: body.Error.Message})
	return err
}
