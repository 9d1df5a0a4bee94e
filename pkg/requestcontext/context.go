// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// Middleware sets these values; the consent client and audit trail consume
// them. Keeping the package free of net/http lets non-HTTP callers (CLI,
// workers, tests) inject the same values.
//
// Usage in consumers (read values):
//
//	subject := requestcontext.SubjectID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithSubjectID(ctx, subject)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
//
// Usage in tests (inject values):
//
//	ctx = requestcontext.WithTime(ctx, fixedTime)
//	ctx = requestcontext.WithClientInfo(ctx, info)
package requestcontext

import (
	"context"
	"time"
)

// Context key types (unexported for encapsulation).
type (
	subjectIDKey   struct{}
	requestIDKey   struct{}
	clientInfoKey  struct{}
	requestTimeKey struct{}
)

// Exported context keys for direct use in tests that need context.WithValue.
var (
	ContextKeySubjectID   = subjectIDKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyClientInfo  = clientInfoKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ClientInfo carries client metadata captured at the edge, parsed once by
// middleware so consumers never touch the raw User-Agent grammar.
type ClientInfo struct {
	IP             string
	UserAgent      string // raw header value
	Browser        string
	BrowserVersion string
	OS             string
	Mobile         bool
	Bot            bool
}

// SubjectID retrieves the request's consent subject from the context.
// Returns "" if not set.
func SubjectID(ctx context.Context) string {
	if subject, ok := ctx.Value(ContextKeySubjectID).(string); ok {
		return subject
	}
	return ""
}

// WithSubjectID injects a consent subject into the context.
func WithSubjectID(ctx context.Context, subjectID string) context.Context {
	return context.WithValue(ctx, ContextKeySubjectID, subjectID)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Info retrieves client metadata from the context. Returns the zero value
// if not set.
func Info(ctx context.Context) ClientInfo {
	if info, ok := ctx.Value(ContextKeyClientInfo).(ClientInfo); ok {
		return info
	}
	return ClientInfo{}
}

// WithClientInfo injects client metadata into a context.
// Useful for callers that don't run the full HTTP middleware chain.
func WithClientInfo(ctx context.Context, info ClientInfo) context.Context {
	return context.WithValue(ctx, ContextKeyClientInfo, info)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() if not set (for non-HTTP contexts like workers,
// CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}
