package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	audit "assent/pkg/platform/audit"
	platformstrings "assent/pkg/platform/strings"
	txcontext "assent/pkg/platform/tx"
)

// Store implements audit.Store on PostgreSQL. Events are appended to the
// audit_events table; rows are never updated or deleted by this store.
type Store struct {
	db *sql.DB

	ownsDB bool
}

// New wraps an existing database handle. The handle lifecycle stays with
// the caller; Close will not tear it down. Callers are responsible for
// running EnsureSchema once.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to dsn, ensures the schema, and returns a store that owns
// its handle.
func Open(ctx context.Context, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("postgres DSN is required")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres ping failed: %w", err)
	}
	if err := EnsureSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, ownsDB: true}, nil
}

// EnsureSchema creates the audit_events table and its indexes.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS audit_events (
			id         UUID PRIMARY KEY,
			category   TEXT        NOT NULL,
			timestamp  TIMESTAMPTZ NOT NULL,
			action     TEXT        NOT NULL,
			subject_id TEXT        NOT NULL DEFAULT '',
			record_id  TEXT        NOT NULL DEFAULT '',
			purposes   TEXT        NOT NULL DEFAULT '',
			decision   TEXT        NOT NULL DEFAULT '',
			driver     TEXT        NOT NULL DEFAULT '',
			request_id TEXT        NOT NULL DEFAULT '',
			user_agent TEXT        NOT NULL DEFAULT '',
			reason     TEXT        NOT NULL DEFAULT ''
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_subject
			ON audit_events (subject_id, timestamp DESC);
	`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure audit schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

// Append writes an audit event. Idempotent per generated event ID.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	// The category map on the action is the source of truth.
	category := event.Action.Category()

	query := `
		INSERT INTO audit_events (
			id, category, timestamp, action, subject_id, record_id,
			purposes, decision, driver, request_id, user_agent, reason
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`
	_, err := s.execer(ctx).ExecContext(ctx, query,
		uuid.New(),
		string(category),
		event.Timestamp,
		string(event.Action),
		event.SubjectID,
		event.RecordID,
		strings.Join(event.Purposes, ","),
		event.Decision,
		event.Driver,
		event.RequestID,
		event.UserAgent,
		event.Reason,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// ListBySubject returns events for a subject, most recent first.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, subject_id, record_id,
			   purposes, decision, driver, request_id, user_agent, reason
		FROM audit_events
		WHERE subject_id = $1
		ORDER BY timestamp DESC
	`
	rows, err := s.db.QueryContext(ctx, query, subjectID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListRecent returns the N most recent events.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `
		SELECT category, timestamp, action, subject_id, record_id,
			   purposes, decision, driver, request_id, user_agent, reason
		FROM audit_events
		ORDER BY timestamp DESC
		LIMIT $1
	`
	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// Close releases the db handle when the store opened it; handles passed
// to New stay with their owner.
func (s *Store) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event

	for rows.Next() {
		var (
			event    audit.Event
			category string
			action   string
			purposes string
		)
		err := rows.Scan(
			&category,
			&event.Timestamp,
			&action,
			&event.SubjectID,
			&event.RecordID,
			&purposes,
			&event.Decision,
			&event.Driver,
			&event.RequestID,
			&event.UserAgent,
			&event.Reason,
		)
		if err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}

		event.Category = audit.EventCategory(category)
		event.Action = audit.Action(action)
		event.Purposes = platformstrings.SplitList(purposes)

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit events: %w", err)
	}

	return events, nil
}
