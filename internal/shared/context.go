package shared

import "context"

type sessionContextKey struct{}

// ContextWithSession stores the session in context.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext extracts the session from context.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionContextKey{}).(*Session)
	return sess
}

// CurrentUserID returns the signed-in account ID from the request session,
// or empty when the request is anonymous.
func CurrentUserID(ctx context.Context) string {
	if sess := SessionFromContext(ctx); sess != nil {
		return sess.User()
	}
	return ""
}
