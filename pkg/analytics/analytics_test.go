package analytics

import (
	"context"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRecorder(t *testing.T) *Recorder {
	t.Helper()
	path := filepath.Join(t.TempDir(), "analytics.db")
	rec, err := Open(path, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rec.Close() })
	return rec
}

func TestRecordIsFlushedAndReadableByTenant(t *testing.T) {
	rec := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)

	rec.Record(QueryRecord{ID: "1", Tenant: "acme", Route: "/v1/query", StatusCode: 200, Timestamp: time.Now()})
	rec.Record(QueryRecord{ID: "2", Tenant: "globex", Route: "/v1/query", StatusCode: 200, Timestamp: time.Now()})

	time.Sleep(flushInterval + 200*time.Millisecond)
	cancel()

	results, err := rec.List(Query{Tenant: "acme"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "acme", results[0].Tenant)
}

func TestAdminListSeesAllTenants(t *testing.T) {
	rec := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)

	rec.Record(QueryRecord{ID: "1", Tenant: "acme", Route: "/v1/query", Timestamp: time.Now()})
	rec.Record(QueryRecord{ID: "2", Tenant: "globex", Route: "/v1/query", Timestamp: time.Now()})

	time.Sleep(flushInterval + 200*time.Millisecond)
	cancel()

	results, err := rec.List(Query{IsAdmin: true})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestListRespectsLimit(t *testing.T) {
	rec := newTestRecorder(t)
	ctx, cancel := context.WithCancel(context.Background())
	rec.Start(ctx)

	for i := 0; i < 5; i++ {
		rec.Record(QueryRecord{ID: "x", Tenant: "acme", Route: "/v1/query", Timestamp: time.Now()})
	}

	time.Sleep(flushInterval + 200*time.Millisecond)
	cancel()

	results, err := rec.List(Query{Tenant: "acme", Limit: 2})
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestRecordNeverBlocksWhenBufferFull(t *testing.T) {
	rec := newTestRecorder(t)
	// No Start call: the flush loop never drains, so the buffer fills and
	// Record must still return instead of blocking the caller.
	done := make(chan struct{})
	go func() {
		for i := 0; i < bufferSize+10; i++ {
			rec.Record(QueryRecord{ID: "x", Tenant: "acme"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked with a full buffer")
	}
}
