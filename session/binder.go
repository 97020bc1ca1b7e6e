package session

import "context"

type sessionIDContextKey struct{}

// WithSessionID binds id to ctx. The binding lives exactly as long as the
// derived context, so it disappears with the request on every exit path.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionIDContextKey{}, id)
}

// SessionIDFromContext returns the session id bound to the current request, if any.
func SessionIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(sessionIDContextKey{}).(string)
	return id, ok && id != ""
}
