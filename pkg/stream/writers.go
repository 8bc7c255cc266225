package stream

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
)

type frame struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// httpFlushWriter is satisfied by net/http's ResponseWriter in every real
// server; tests may stub it with a bufio.Writer-backed fake.
type httpFlushWriter interface {
	Write([]byte) (int, error)
	Flush()
}

// sseWriter frames each event as a Server-Sent Events "event: <type>\ndata:
// <json>\n\n" block.
type sseWriter struct {
	w httpFlushWriter
}

// NewSSEWriter returns a Writer that frames over Server-Sent Events.
func NewSSEWriter(w http.ResponseWriter) Writer {
	f, _ := w.(http.Flusher)
	return &sseWriter{w: flushAdapter{w, f}}
}

func (s *sseWriter) write(eventType string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", eventType, b); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

func (s *sseWriter) WriteMetadata(m Metadata) error       { return s.write("metadata", m) }
func (s *sseWriter) WriteChunk(rows [][]any) error        { return s.write("data", rows) }
func (s *sseWriter) WriteProgress(p Progress) error       { return s.write("progress", p) }
func (s *sseWriter) WriteComplete(c Complete) error       { return s.write("complete", c) }
func (s *sseWriter) WriteError(e ErrorFrame) error        { return s.write("error", e) }
func (s *sseWriter) Heartbeat() error {
	if _, err := fmt.Fprint(s.w, ": heartbeat\n\n"); err != nil {
		return err
	}
	s.w.Flush()
	return nil
}

type flushAdapter struct {
	w http.ResponseWriter
	f http.Flusher
}

func (a flushAdapter) Write(p []byte) (int, error) { return a.w.Write(p) }
func (a flushAdapter) Flush() {
	if a.f != nil {
		a.f.Flush()
	}
}

// ndjsonWriter frames each event as one JSON object per line.
type ndjsonWriter struct {
	w httpFlushWriter
}

// NewNDJSONWriter returns a Writer that frames as newline-delimited JSON.
func NewNDJSONWriter(w http.ResponseWriter) Writer {
	f, _ := w.(http.Flusher)
	return &ndjsonWriter{w: flushAdapter{w, f}}
}

func (n *ndjsonWriter) write(eventType string, v any) error {
	b, err := json.Marshal(frame{Type: eventType, Data: v})
	if err != nil {
		return err
	}
	if _, err := n.w.Write(append(b, '\n')); err != nil {
		return err
	}
	n.w.Flush()
	return nil
}

func (n *ndjsonWriter) WriteMetadata(m Metadata) error { return n.write("metadata", m) }
func (n *ndjsonWriter) WriteChunk(rows [][]any) error  { return n.write("data", rows) }
func (n *ndjsonWriter) WriteProgress(p Progress) error { return n.write("progress", p) }
func (n *ndjsonWriter) WriteComplete(c Complete) error { return n.write("complete", c) }
func (n *ndjsonWriter) WriteError(e ErrorFrame) error  { return n.write("error", e) }
func (n *ndjsonWriter) Heartbeat() error               { return nil }

// jsonArrayWriter frames the whole response as a single JSON array of
// frame envelopes, each written incrementally as it's produced.
type jsonArrayWriter struct {
	w       httpFlushWriter
	wrote   bool
}

// NewJSONArrayWriter returns a Writer that frames as one streamed JSON array.
func NewJSONArrayWriter(w http.ResponseWriter) Writer {
	f, _ := w.(http.Flusher)
	jw := &jsonArrayWriter{w: flushAdapter{w, f}}
	_, _ = jw.w.Write([]byte("["))
	return jw
}

func (j *jsonArrayWriter) write(eventType string, v any) error {
	b, err := json.Marshal(frame{Type: eventType, Data: v})
	if err != nil {
		return err
	}
	if j.wrote {
		if _, err := j.w.Write([]byte(",")); err != nil {
			return err
		}
	}
	j.wrote = true
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	j.w.Flush()
	return nil
}

func (j *jsonArrayWriter) WriteMetadata(m Metadata) error { return j.write("metadata", m) }
func (j *jsonArrayWriter) WriteChunk(rows [][]any) error  { return j.write("data", rows) }
func (j *jsonArrayWriter) WriteProgress(p Progress) error { return j.write("progress", p) }
func (j *jsonArrayWriter) Heartbeat() error               { return nil }

func (j *jsonArrayWriter) WriteComplete(c Complete) error {
	if err := j.write("complete", c); err != nil {
		return err
	}
	_, err := j.w.Write([]byte("]"))
	j.w.Flush()
	return err
}

func (j *jsonArrayWriter) WriteError(e ErrorFrame) error {
	if err := j.write("error", e); err != nil {
		return err
	}
	_, err := j.w.Write([]byte("]"))
	j.w.Flush()
	return err
}

// csvWriter frames only data rows as CSV; metadata becomes the header row
// and progress/heartbeat frames are no-ops (CSV has no side-channel).
type csvWriter struct {
	cw            *csv.Writer
	wroteHeader   bool
}

// NewCSVWriter returns a Writer that frames as CSV, columns as the header.
func NewCSVWriter(w http.ResponseWriter) Writer {
	return &csvWriter{cw: csv.NewWriter(w)}
}

func (c *csvWriter) WriteMetadata(m Metadata) error {
	if err := c.cw.Write(m.Columns); err != nil {
		return err
	}
	c.wroteHeader = true
	c.cw.Flush()
	return c.cw.Error()
}

func (c *csvWriter) WriteChunk(rows [][]any) error {
	for _, row := range rows {
		rec := make([]string, len(row))
		for i, v := range row {
			rec[i] = fmt.Sprint(v)
		}
		if err := c.cw.Write(rec); err != nil {
			return err
		}
	}
	c.cw.Flush()
	return c.cw.Error()
}

func (c *csvWriter) WriteProgress(Progress) error { return nil }
func (c *csvWriter) WriteComplete(Complete) error { c.cw.Flush(); return c.cw.Error() }
func (c *csvWriter) WriteError(e ErrorFrame) error { return fmt.Errorf("%s: %s", e.Code, e.Message) }
func (c *csvWriter) Heartbeat() error              { return nil }

// wsWriter frames each event as one JSON text message over a WebSocket
// connection, and answers heartbeat with a ping control frame.
type wsWriter struct {
	conn *websocket.Conn
}

// NewWebSocketWriter returns a Writer that frames over an established
// WebSocket connection.
func NewWebSocketWriter(conn *websocket.Conn) Writer {
	return &wsWriter{conn: conn}
}

func (w *wsWriter) write(eventType string, v any) error {
	return w.conn.WriteJSON(frame{Type: eventType, Data: v})
}

func (w *wsWriter) WriteMetadata(m Metadata) error { return w.write("metadata", m) }
func (w *wsWriter) WriteChunk(rows [][]any) error  { return w.write("data", rows) }
func (w *wsWriter) WriteProgress(p Progress) error { return w.write("progress", p) }
func (w *wsWriter) WriteComplete(c Complete) error { return w.write("complete", c) }
func (w *wsWriter) WriteError(e ErrorFrame) error  { return w.write("error", e) }
func (w *wsWriter) Heartbeat() error               { return w.conn.WriteMessage(websocket.PingMessage, nil) }
