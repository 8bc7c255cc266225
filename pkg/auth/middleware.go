package auth

import (
	"log/slog"
	"net/http"

	"github.com/setupranali/gateway/internal/httpserver"
)

// Middleware authenticates every request via the X-API-Key header and
// stamps the resolved Identity onto the request context. The health
// endpoint is mounted outside this middleware's router group.
func Middleware(resolver *Resolver, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rawKey := r.Header.Get("X-API-Key")

			id, err := resolver.Resolve(r.Context(), rawKey)
			if err != nil {
				logger.Warn("authentication failed", "error", err)
				httpserver.RespondErr(w, logger, err)
				return
			}

			ctx := NewContext(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole returns middleware that rejects requests whose identity does
// not hold one of the allowed roles. Admins always pass.
func RequireRole(logger *slog.Logger, allowed ...Role) func(http.Handler) http.Handler {
	allowedSet := make(map[Role]bool, len(allowed))
	for _, r := range allowed {
		allowedSet[r] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := FromContext(r.Context())
			if !ok || (!id.IsAdmin() && !allowedSet[id.Role]) {
				httpserver.RespondError(w, http.StatusForbidden, "ERR_4030", "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
