package ratelimit

import (
	"context"
	"log/slog"
)

// TieredLimiter prefers the shared Redis store and falls back to a local,
// per-replica limiter when Redis errors, logging a warning each time —
// spec.md §4.2's "fail-open with a warning."
type TieredLimiter struct {
	primary  Limiter
	fallback Limiter
	logger   *slog.Logger
}

func NewTieredLimiter(primary, fallback Limiter, logger *slog.Logger) *TieredLimiter {
	return &TieredLimiter{primary: primary, fallback: fallback, logger: logger}
}

func (t *TieredLimiter) Allow(ctx context.Context, key string, class RouteClass, overrideLimit int) (Decision, error) {
	d, err := t.primary.Allow(ctx, key, class, overrideLimit)
	if err == nil {
		return d, nil
	}

	t.logger.Warn("rate limit store unreachable, falling back to local limiter", "error", err)
	return t.fallback.Allow(ctx, key, class, overrideLimit)
}
