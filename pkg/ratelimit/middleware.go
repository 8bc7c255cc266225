package ratelimit

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/setupranali/gateway/internal/httpserver"
	"github.com/setupranali/gateway/pkg/apierrors"
)

// KeyFunc extracts the rate-limit key and per-key override limit (0 = use
// class default) from a request's resolved identity.
type KeyFunc func(r *http.Request) (key string, overrideLimit int)

// Middleware enforces class on every request, emitting X-RateLimit-* headers
// and a 429 with Retry-After on rejection, per spec.md §4.2 and §6.
func Middleware(limiter Limiter, class RouteClass, keyFn KeyFunc, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, overrideLimit := keyFn(r)

			d, err := limiter.Allow(r.Context(), key, class, overrideLimit)
			if err != nil {
				httpserver.RespondErr(w, logger, apierrors.Internal("", err))
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds()))
				httpserver.RespondErr(w, logger, apierrors.New(
					apierrors.KindRateLimited, apierrors.CodeRateLimited, "rate limit exceeded",
				))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
