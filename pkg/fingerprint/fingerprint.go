// Package fingerprint computes the deterministic cache key and
// single-flight key for a query request, per spec.md §3's Fingerprint
// definition: a canonical hash over the normalized request plus tenant plus
// catalog generation, invariant to reordering of dimensions, metrics, or
// filters.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/setupranali/gateway/pkg/compiler"
)

// canonicalRequest is the JSON-serializable normalized shape hashed to
// produce a fingerprint. Field order here is fixed so json.Marshal's output
// is itself deterministic across equal canonicalRequest values.
type canonicalRequest struct {
	Dataset    string             `json:"dataset"`
	Dimensions []string           `json:"dimensions"`
	Metrics    []string           `json:"metrics"`
	Filters    []canonicalFilter  `json:"filters"`
	OrderBy    []compiler.OrderBy `json:"order_by"`
	Limit      int                `json:"limit"`
	Offset     int                `json:"offset"`
	Tenant     string             `json:"tenant"`
	Generation uint64             `json:"catalog_generation"`
}

type canonicalFilter struct {
	Field string `json:"field"`
	Op    string `json:"op"`
	Value any    `json:"value"`
}

// Compute returns the hex-encoded SHA-256 fingerprint for a request.
// Dimensions, metrics, and filters are sorted lexicographically and filter
// "in"/"not_in" lists are sorted and deduplicated before hashing, so
// reordering any of them yields an identical fingerprint.
func Compute(req compiler.QueryRequest, tenant string, catalogGeneration uint64) string {
	dims := append([]string(nil), req.Dimensions...)
	sort.Strings(dims)

	metrics := append([]string(nil), req.Metrics...)
	sort.Strings(metrics)

	filters := make([]canonicalFilter, len(req.Filters))
	for i, f := range req.Filters {
		filters[i] = canonicalFilter{
			Field: f.Field,
			Op:    string(f.Op),
			Value: canonicalizeValue(f.Value.Raw()),
		}
	}
	sort.Slice(filters, func(i, j int) bool {
		if filters[i].Field != filters[j].Field {
			return filters[i].Field < filters[j].Field
		}
		if filters[i].Op != filters[j].Op {
			return filters[i].Op < filters[j].Op
		}
		return fmt.Sprint(filters[i].Value) < fmt.Sprint(filters[j].Value)
	})

	cr := canonicalRequest{
		Dataset:    req.Dataset,
		Dimensions: dims,
		Metrics:    metrics,
		Filters:    filters,
		OrderBy:    append([]compiler.OrderBy(nil), req.OrderBy...),
		Limit:      req.Limit,
		Offset:     req.Offset,
		Tenant:     tenant,
		Generation: catalogGeneration,
	}

	// json.Marshal on map keys sorts them, but our struct has fixed field
	// order already; we rely on that plus the explicit sorts above for
	// full canonicalization.
	b, err := json.Marshal(cr)
	if err != nil {
		// canonicalRequest contains only marshalable primitives produced by
		// canonicalizeValue; a marshal failure here means a filter value
		// escaped normalization, which is a programming error.
		panic("fingerprint: canonical request failed to marshal: " + err.Error())
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalizeValue normalizes a filter value for hashing: lists are sorted
// and deduplicated (by their JSON-encoded form), and every other scalar is
// passed through json.Marshal's own canonical number/string encoding.
func canonicalizeValue(v any) any {
	list, ok := v.([]any)
	if !ok {
		return v
	}

	seen := make(map[string]bool, len(list))
	encoded := make([]string, 0, len(list))
	for _, e := range list {
		b, _ := json.Marshal(e)
		key := string(b)
		if !seen[key] {
			seen[key] = true
			encoded = append(encoded, key)
		}
	}
	sort.Strings(encoded)

	out := make([]any, len(encoded))
	for i, e := range encoded {
		var decoded any
		_ = json.Unmarshal([]byte(e), &decoded)
		out[i] = decoded
	}
	return out
}
