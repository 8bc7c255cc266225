package auditlog

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestWriter(t *testing.T) *Writer {
	t.Helper()
	path := filepath.Join(t.TempDir(), "audit.db")
	w, err := Open(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })
	return w
}

func TestLogIsFlushedAndListable(t *testing.T) {
	w := newTestWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	w.Log(Entry{Actor: "sp_abc123", Action: "source.create", Resource: "source", ResourceID: "src1"})

	time.Sleep(flushInterval + 200*time.Millisecond)
	cancel()

	entries, err := w.List(0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "source.create", entries[0].Action)
}

func TestLogNeverBlocksWhenBufferFull(t *testing.T) {
	w := newTestWriter(t)
	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+10; i++ {
			w.Log(Entry{Actor: "x", Action: "noop"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Log blocked with a full buffer")
	}
}

func TestListRespectsLimit(t *testing.T) {
	w := newTestWriter(t)
	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)

	for i := 0; i < 5; i++ {
		w.Log(Entry{Actor: "x", Action: "noop"})
	}
	time.Sleep(flushInterval + 200*time.Millisecond)
	cancel()

	entries, err := w.List(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
