// Package auditlog records admin mutations (source add/remove, catalog
// reload, cache clear) to a local embedded
// store, using the same async-buffered-writer shape as pkg/analytics but
// keyed to administrative actions rather than query completions.
package auditlog

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Entry is one admin mutation.
type Entry struct {
	Actor      string          `json:"actor"` // api key prefix or identity tenant
	Action     string          `json:"action"`
	Resource   string          `json:"resource"`
	ResourceID string          `json:"resource_id,omitempty"`
	Detail     json.RawMessage `json:"detail,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

var bucketName = []byte("admin_audit")

const (
	bufferSize    = 128
	flushInterval = 2 * time.Second
	flushBatch    = 16
)

// Writer is an async, buffered admin-audit writer.
type Writer struct {
	db      *bolt.DB
	logger  *slog.Logger
	entries chan Entry
	wg      sync.WaitGroup
}

// Open opens (creating if absent) the bbolt database at path.
func Open(path string, logger *slog.Logger) (*Writer, error) {
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
	return &Writer{db: db, logger: logger, entries: make(chan Entry, bufferSize)}, nil
}

// Start launches the background flush loop.
func (w *Writer) Start(ctx context.Context) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(ctx)
	}()
}

// Close drains remaining entries and closes the store.
func (w *Writer) Close() error {
	close(w.entries)
	w.wg.Wait()
	return w.db.Close()
}

// Log enqueues an admin-audit entry. It never blocks the caller; a full
// buffer drops the entry with a warning log.
func (w *Writer) Log(entry Entry) {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
	select {
	case w.entries <- entry:
	default:
		w.logger.Warn("admin audit buffer full, dropping entry", "action", entry.Action, "resource", entry.Resource)
	}
}

func (w *Writer) run(ctx context.Context) {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	batch := make([]Entry, 0, flushBatch)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := w.flush(batch); err != nil {
			w.logger.Error("flushing admin audit entries", "error", err, "count", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case entry, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, entry)
			if len(batch) >= flushBatch {
				flush()
			}
		case <-ticker.C:
			flush()
		case <-ctx.Done():
			for {
				select {
				case entry, ok := <-w.entries:
					if !ok {
						flush()
						return
					}
					batch = append(batch, entry)
				default:
					flush()
					return
				}
			}
		}
	}
}

func (w *Writer) flush(batch []Entry) error {
	return w.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		for _, e := range batch {
			seq, err := b.NextSequence()
			if err != nil {
				return err
			}
			val, err := json.Marshal(e)
			if err != nil {
				return err
			}
			if err := b.Put(entryKey(e.Timestamp, seq), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func entryKey(ts time.Time, seq uint64) []byte {
	key := make([]byte, 16)
	binary.BigEndian.PutUint64(key[:8], uint64(ts.UnixNano()))
	binary.BigEndian.PutUint64(key[8:], seq)
	return key
}

// List returns recorded entries oldest first, at most limit of them when
// limit > 0 (every entry otherwise). Admin-only surface, so
// there is no tenant scoping to apply.
func (w *Writer) List(limit int) ([]Entry, error) {
	var out []Entry
	err := w.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				continue
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	return out, err
}
