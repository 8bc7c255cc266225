// Package ratelimit implements a token bucket per (key, route-class), with
// a Redis-backed shared store as primary and an in-process fallback when
// Redis is unreachable.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// RetryAfterSeconds returns the whole-second Retry-After value for a
// rejected decision.
func (d Decision) RetryAfterSeconds() int {
	s := int(time.Until(d.ResetAt).Seconds())
	if s < 1 {
		return 1
	}
	return s
}

// RouteClass names a bucket of routes sharing one rate-limit configuration,
// per spec.md §4.2 (query, odata, sources, ...).
type RouteClass string

const (
	ClassQuery   RouteClass = "query"
	ClassOData   RouteClass = "odata"
	ClassSources RouteClass = "sources"
)

// Limits maps a route class to its default requests-per-minute budget.
type Limits map[RouteClass]int

// DefaultLimits returns spec.md §4.2's stated defaults.
func DefaultLimits() Limits {
	return Limits{
		ClassQuery:   100,
		ClassOData:   50,
		ClassSources: 10,
	}
}

// Limiter decides whether a request for (key, class) is admitted. key is
// typically the raw API key or tenant id; overrideLimit, if > 0, replaces
// the class default for that key (spec.md §4.2's "per-key overridable").
type Limiter interface {
	Allow(ctx context.Context, key string, class RouteClass, overrideLimit int) (Decision, error)
}
