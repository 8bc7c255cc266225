// Package stream dispatches query rows to a client over SSE, WebSocket,
// NDJSON, CSV, or a chunked JSON array, using one internal chunked-row
// model across every protocol, per spec.md §4.10.
package stream

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/setupranali/gateway/pkg/executor"
)

// Protocol selects the wire framing.
type Protocol string

const (
	ProtocolSSE       Protocol = "sse"
	ProtocolWebSocket Protocol = "websocket"
	ProtocolNDJSON    Protocol = "ndjson"
	ProtocolJSONArray Protocol = "json_array"
	ProtocolCSV       Protocol = "csv"
)

// Metadata is the mandatory first frame.
type Metadata struct {
	StreamID  string   `json:"stream_id"`
	Dataset   string   `json:"dataset"`
	ChunkSize int      `json:"chunk_size"`
	Columns   []string `json:"columns"`
}

// Progress is emitted every progress-interval chunks.
type Progress struct {
	ChunksSent int     `json:"chunks_sent"`
	RowsSent   int     `json:"rows_sent"`
	Percent    float64 `json:"percent"` // -1 when total row count is unknown
}

// Complete is the mandatory terminal success frame.
type Complete struct {
	TotalRows  int  `json:"total_rows"`
	TotalChunks int `json:"total_chunks"`
	Truncated  bool `json:"truncated"`
}

// ErrorFrame is the terminal failure frame.
type ErrorFrame struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Writer is the per-protocol frame sink. Implementations must be safe to
// call sequentially from the dispatch loop (no internal concurrency).
type Writer interface {
	WriteMetadata(Metadata) error
	WriteChunk(rows [][]any) error
	WriteProgress(Progress) error
	WriteComplete(Complete) error
	WriteError(ErrorFrame) error
	// Heartbeat is called when no data frame has been written for the
	// heartbeat interval. Protocols without an idle primitive (NDJSON,
	// CSV, JSON array) may no-op.
	Heartbeat() error
}

// Options configures one dispatch.
type Options struct {
	Dataset           string
	ChunkSize         int           // default 1000
	MaxRows           int           // stream.max_rows, overrides the guard cap
	ProgressInterval  int           // chunks between progress frames, default 10
	HeartbeatInterval time.Duration // default 15s
	TotalRowsHint     int           // -1 if unknown, used only for percent
}

func (o Options) withDefaults() Options {
	if o.ChunkSize <= 0 {
		o.ChunkSize = 1000
	}
	if o.ProgressInterval <= 0 {
		o.ProgressInterval = 10
	}
	if o.HeartbeatInterval <= 0 {
		o.HeartbeatInterval = 15 * time.Second
	}
	if o.TotalRowsHint == 0 {
		o.TotalRowsHint = -1
	}
	return o
}

// Dispatch drives rows from cursor into w chunk by chunk until exhaustion,
// opts.MaxRows is reached (producing a truncated Complete), ctx is
// cancelled, or a row/scan error occurs (producing an ErrorFrame). It
// always emits exactly one terminal frame (Complete or ErrorFrame).
func Dispatch(ctx context.Context, w Writer, cursor executor.Rows, opts Options) error {
	opts = opts.withDefaults()

	cols, err := cursor.Columns()
	if err != nil {
		_ = w.WriteError(ErrorFrame{Code: "ERR_9000", Message: "failed to read columns"})
		return err
	}

	streamID := uuid.NewString()
	if err := w.WriteMetadata(Metadata{StreamID: streamID, Dataset: opts.Dataset, ChunkSize: opts.ChunkSize, Columns: cols}); err != nil {
		return err
	}

	heartbeat := time.NewTicker(opts.HeartbeatInterval)
	defer heartbeat.Stop()

	var (
		chunk        = make([][]any, 0, opts.ChunkSize)
		chunksSent   int
		rowsSent     int
		truncated    bool
		lastActivity = time.Now()
		progressSent bool
	)

	writeProgress := func() error {
		percent := -1.0
		if opts.TotalRowsHint > 0 {
			percent = 100 * float64(rowsSent) / float64(opts.TotalRowsHint)
		}
		progressSent = true
		return w.WriteProgress(Progress{ChunksSent: chunksSent, RowsSent: rowsSent, Percent: percent})
	}

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := w.WriteChunk(chunk); err != nil {
			return err
		}
		chunksSent++
		rowsSent += len(chunk)
		lastActivity = time.Now()
		chunk = chunk[:0]

		if chunksSent%opts.ProgressInterval == 0 {
			return writeProgress()
		}
		return nil
	}

rowLoop:
	for {
		select {
		case <-ctx.Done():
			_ = w.WriteError(ErrorFrame{Code: "ERR_CANCELLED", Message: ctx.Err().Error()})
			return ctx.Err()
		case <-heartbeat.C:
			if time.Since(lastActivity) >= opts.HeartbeatInterval {
				if err := w.Heartbeat(); err != nil {
					return err
				}
			}
			continue
		default:
		}

		if opts.MaxRows > 0 && rowsSent+len(chunk) >= opts.MaxRows {
			truncated = true
			break rowLoop
		}

		if !cursor.Next() {
			break rowLoop
		}

		row, err := scanRow(cursor, len(cols))
		if err != nil {
			_ = flush()
			_ = w.WriteError(ErrorFrame{Code: "ERR_9000", Message: "failed to scan row"})
			return err
		}
		chunk = append(chunk, row)

		if len(chunk) >= opts.ChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}

	if err := flush(); err != nil {
		return err
	}
	if err := cursor.Err(); err != nil {
		_ = w.WriteError(ErrorFrame{Code: "ERR_9000", Message: "cursor error: " + err.Error()})
		return err
	}

	// A stream short enough to finish within one progress interval would
	// otherwise report no progress at all; always surface at least one
	// frame once any rows were sent.
	if !progressSent && chunksSent > 0 {
		if err := writeProgress(); err != nil {
			return err
		}
	}

	return w.WriteComplete(Complete{TotalRows: rowsSent, TotalChunks: chunksSent, Truncated: truncated})
}

func scanRow(cursor executor.Rows, numCols int) ([]any, error) {
	dest := make([]any, numCols)
	ptrs := make([]any, numCols)
	for i := range dest {
		ptrs[i] = &dest[i]
	}
	if err := cursor.Scan(ptrs...); err != nil {
		return nil, err
	}
	for i, v := range dest {
		if b, ok := v.([]byte); ok {
			dest[i] = string(b)
		}
	}
	return dest, nil
}
