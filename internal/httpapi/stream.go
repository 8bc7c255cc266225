package httpapi

import (
	"net/http"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/compiler"
	"github.com/setupranali/gateway/pkg/stream"
)

// streamRequest is the wire body for POST /v1/stream: a QueryRequest plus
// the framing knobs spec.md §6 names.
type streamRequest struct {
	compiler.QueryRequest
	Format          string `json:"format,omitempty"`
	ChunkSize       int    `json:"chunk_size,omitempty"`
	IncludeMetadata bool   `json:"include_metadata,omitempty"`
	IncludeProgress bool   `json:"include_progress,omitempty"`
}

// suppressProgressWriter drops progress frames when a client opted out via
// include_progress=false; the metadata and terminal frames stream.Dispatch
// treats as mandatory are always passed through.
type suppressProgressWriter struct {
	stream.Writer
}

func (w suppressProgressWriter) WriteProgress(stream.Progress) error { return nil }

func contentTypeFor(p stream.Protocol) string {
	switch p {
	case stream.ProtocolSSE:
		return "text/event-stream"
	case stream.ProtocolNDJSON:
		return "application/x-ndjson"
	case stream.ProtocolCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	id, ok := identityOrUnauthenticated(w, r)
	if !ok {
		return
	}

	var req streamRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	protocol := stream.Protocol(req.Format)
	if protocol == "" {
		protocol = stream.ProtocolNDJSON
	}

	opts := stream.Options{Dataset: req.Dataset, ChunkSize: req.ChunkSize}

	if protocol == stream.ProtocolWebSocket {
		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "error", err)
			return
		}
		defer conn.Close()

		var sw stream.Writer = stream.NewWebSocketWriter(conn)
		if !req.IncludeProgress {
			sw = suppressProgressWriter{sw}
		}
		_ = h.engine.Stream(r.Context(), sw, req.QueryRequest, id.Tenant, id.IsAdmin(), opts)
		return
	}

	w.Header().Set("Content-Type", contentTypeFor(protocol))
	w.WriteHeader(http.StatusOK)

	var sw stream.Writer
	switch protocol {
	case stream.ProtocolSSE:
		sw = stream.NewSSEWriter(w)
	case stream.ProtocolJSONArray:
		sw = stream.NewJSONArrayWriter(w)
	case stream.ProtocolCSV:
		sw = stream.NewCSVWriter(w)
	default:
		sw = stream.NewNDJSONWriter(w)
	}
	if !req.IncludeProgress {
		sw = suppressProgressWriter{sw}
	}

	_ = h.engine.Stream(r.Context(), sw, req.QueryRequest, id.Tenant, id.IsAdmin(), opts)
}
