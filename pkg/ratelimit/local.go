package ratelimit

import (
	"context"
	"sync"
	"time"
)

// LocalLimiter is a fixed-window fallback used only when the shared Redis
// store is unreachable (fail-open per spec.md §4.2). Each gateway replica
// tracks its own counters, so the effective global limit is looser than
// configured while the store is down — an accepted tradeoff against
// rejecting all traffic.
type LocalLimiter struct {
	mu      sync.Mutex
	buckets map[string]*localWindow
}

type localWindow struct {
	count      int
	windowEnds time.Time
}

func NewLocalLimiter() *LocalLimiter {
	return &LocalLimiter{buckets: make(map[string]*localWindow)}
}

func (l *LocalLimiter) Allow(ctx context.Context, key string, class RouteClass, overrideLimit int) (Decision, error) {
	limit := overrideLimit
	if limit <= 0 {
		limit = DefaultLimits()[class]
	}
	if limit <= 0 {
		limit = 60
	}

	bucketKey := string(class) + "|" + key
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.buckets[bucketKey]
	if !ok || now.After(w.windowEnds) {
		w = &localWindow{count: 0, windowEnds: now.Add(time.Minute)}
		l.buckets[bucketKey] = w
	}

	if w.count >= limit {
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: w.windowEnds}, nil
	}

	w.count++
	return Decision{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   w.windowEnds,
	}, nil
}
