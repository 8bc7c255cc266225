package analytics

import (
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Query bounds a read over the analytics store.
type Query struct {
	Tenant  string // ignored when IsAdmin is true
	IsAdmin bool
	Since   time.Time // zero value means unbounded
	Until   time.Time // zero value means unbounded
	Limit   int       // 0 means no cap
}

// List returns matching records newest-first.
func (r *Recorder) List(q Query) ([]QueryRecord, error) {
	var out []QueryRecord

	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()

		upper := []byte(nil)
		if !q.Until.IsZero() {
			upper = recordKey(q.Until, ^uint64(0))
		}

		var k, v []byte
		if upper != nil {
			k, v = c.Seek(upper)
			if k == nil {
				k, v = c.Last()
			} else if compareKeys(k, upper) > 0 {
				k, v = c.Prev()
			}
		} else {
			k, v = c.Last()
		}

		for ; k != nil; k, v = c.Prev() {
			if !q.Since.IsZero() && keyTime(k).Before(q.Since) {
				break
			}

			var rec QueryRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			if !q.IsAdmin && rec.Tenant != q.Tenant {
				continue
			}

			out = append(out, rec)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
		return nil
	})

	return out, err
}

func keyTime(key []byte) time.Time {
	ns := binary.BigEndian.Uint64(key[:8])
	return time.Unix(0, int64(ns))
}

func compareKeys(a, b []byte) int {
	for i := range a {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	return 0
}
