package auth

import "context"

type contextKey string

const identityKey contextKey = "identity"

// NewContext stamps the resolved identity onto the request context.
func NewContext(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext retrieves the identity stamped by the auth middleware. The
// second return is false if no identity is present (should not happen past
// the middleware chain).
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityKey).(Identity)
	return id, ok
}
