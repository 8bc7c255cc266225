// Package analytics records one QueryRecord per terminal request to a
// local embedded store and serves tenant-scoped reads back out, per
// spec.md §4.12. Writes are async and buffered; recorder failure never
// blocks the request path.
package analytics

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// QueryRecord is one terminal request's audit-grade summary.
type QueryRecord struct {
	ID          string    `json:"id"`
	Tenant      string    `json:"tenant"`
	Dataset     string    `json:"dataset,omitempty"`
	Route       string    `json:"route"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	StatusCode  int       `json:"status_code"`
	RowCount    int       `json:"row_count"`
	DurationMS  int64     `json:"duration_ms"`
	CacheHit    bool      `json:"cache_hit"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

var bucketName = []byte("query_records")

const (
	bufferSize    = 256
	flushInterval = 2 * time.Second
	flushBatch    = 32
)

// Recorder is an async, buffered writer over an embedded bbolt store,
// grounded on the same drain-batch-and-flush shape as a typical buffered
// audit writer: a channel absorbs bursts, a ticker bounds staleness, and
// the buffer is drained fully on shutdown.
type Recorder struct {
	db      *bolt.DB
	logger  *slog.Logger
	entries chan QueryRecord
	wg      sync.WaitGroup
}

// Open opens (creating if absent) the bbolt database at path and returns a
// Recorder ready to Start.
func Open(path string, logger *slog.Logger) (*Recorder, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, err
	}

	return &Recorder{db: db, logger: logger, entries: make(chan QueryRecord, bufferSize)}, nil
}

// Start launches the background flush loop; it exits once ctx is
// cancelled and every buffered record has been flushed.
func (r *Recorder) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

// Close waits for the flush loop to drain and closes the underlying store.
func (r *Recorder) Close() error {
	close(r.entries)
	r.wg.Wait()
	return r.db.Close()
}

// Record enqueues rec for async writing. It never blocks the request
// path: a full buffer drops the record with a warning log.
func (r *Recorder) Record(rec QueryRecord) {
	select {
	case r.entries <- rec:
	default:
		r.logger.Warn("analytics buffer full, dropping record", "tenant", rec.Tenant, "route", rec.Route)
	}
}

func (r *Recorder) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]QueryRecord, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.flush(batch); err != nil {
			r.logger.Error("flushing analytics records", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case rec, ok := <-r.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rec)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case rec, ok := <-r.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, rec)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (r *Recorder) flush(batch []QueryRecord) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, rec := range batch {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			val, err := json.Marshal(rec)
			if err != nil {
				return err
			}
			if err := b.Put(recordKey(rec.Timestamp, seq), val); err != nil {
				return err
			}
		}
		return nil
	})
}

// recordKey orders entries by time then sequence so a bucket cursor walks
// them chronologically regardless of insertion batching.
func recordKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}
