package middleware

import "context"

type contextKey string

const (
	ctxSessionID contextKey = "session_id"
	ctxSubject   contextKey = "subject"
)

// SessionIDFromContext returns the jti of the authenticated token.
func SessionIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSessionID).(string); ok {
		return v
	}
	return ""
}

// SubjectFromContext returns the token subject, "operator" for dashboard sessions.
func SubjectFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxSubject).(string); ok {
		return v
	}
	return ""
}

// WithSession injects the authenticated session into the context.
func WithSession(ctx context.Context, subject, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = context.WithValue(ctx, ctxSubject, subject)
	return context.WithValue(ctx, ctxSessionID, sessionID)
}
