package tools

import "context"

type contextKey string

const sessionKey contextKey = "session_id"

// WithSession returns a context carrying the chat session ID so that
// tool handlers and the audit trail can attribute calls to the
// conversation that caused them.
func WithSession(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionKey, sessionID)
}

// SessionFromContext extracts the session ID set by WithSession.
// It returns the empty string when none is present.
func SessionFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(sessionKey).(string); ok {
		return v
	}
	return ""
}
