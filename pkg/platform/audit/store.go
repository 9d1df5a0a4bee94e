package audit

import "context"

// Store persists audit events. Implementations must be safe for
// concurrent use.
//
// Write-only sinks (message brokers) may reject the list operations with a
// domain error carrying CodeUnsupported.
type Store interface {
	// Append records one event. Events are immutable once written.
	Append(ctx context.Context, event Event) error

	// ListBySubject returns events for one subject, most recent first.
	ListBySubject(ctx context.Context, subjectID string) ([]Event, error)

	// ListRecent returns the most recent events across all subjects,
	// most recent first, capped at limit.
	ListRecent(ctx context.Context, limit int) ([]Event, error)

	Close() error
}
