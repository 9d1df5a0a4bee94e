package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"assent/pkg/platform/sentinel"
	txcontext "assent/pkg/platform/tx"
)

// postgresStore is the PostgreSQL-backed driver for deployments that already
// run Postgres. Writes honor a transaction carried in the context via
// pkg/platform/tx, so a host application can fold consent writes into its
// own transactions.
type postgresStore struct {
	db *sql.DB

	ownsDB bool
}

func openPostgres(ctx context.Context, cfg Config) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres DSN is required")
	}

	db, err := sql.Open("postgres", cfg.DSN)
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
	return &postgresStore{db: db, ownsDB: true}, nil
}

// NewPostgres wraps an existing database handle. The handle lifecycle stays
// with the caller; Close will not tear it down. Callers are responsible for
// running EnsureSchema once.
func NewPostgres(db *sql.DB) Store {
	return &postgresStore{db: db}
}

// EnsureSchema creates the consent table if it does not exist.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	query := `
		CREATE TABLE IF NOT EXISTS consent_kv (
			k          TEXT PRIMARY KEY,
			v          BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ensure consent schema: %w", err)
	}
	return nil
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *postgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *postgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	var v []byte
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT v FROM consent_kv WHERE k = $1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres get: %w", err)
	}
	return v, nil
}

func (s *postgresStore) Set(ctx context.Context, key string, value []byte) error {
	query := `
		INSERT INTO consent_kv (k, v, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (k) DO UPDATE SET v = EXCLUDED.v, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.execer(ctx).ExecContext(ctx, query, key, value, time.Now().UTC()); err != nil {
		return fmt.Errorf("postgres set: %w", err)
	}
	return nil
}

func (s *postgresStore) Delete(ctx context.Context, key string) error {
	if _, err := s.execer(ctx).ExecContext(ctx, `DELETE FROM consent_kv WHERE k = $1`, key); err != nil {
		return fmt.Errorf("postgres delete: %w", err)
	}
	return nil
}

func (s *postgresStore) Has(ctx context.Context, key string) (bool, error) {
	var one int
	err := s.execer(ctx).QueryRowContext(ctx, `SELECT 1 FROM consent_kv WHERE k = $1`, key).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres has: %w", err)
	}
	return true, nil
}

func (s *postgresStore) Keys(ctx context.Context, prefix string) ([]string, error) {
	query := `SELECT k FROM consent_kv WHERE k LIKE $1 ESCAPE '\' ORDER BY k`
	rows, err := s.execer(ctx).QueryContext(ctx, query, likePattern(prefix))
	if err != nil {
		return nil, fmt.Errorf("postgres keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("postgres keys scan: %w", err)
		}
		keys = append(keys, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate postgres keys: %w", err)
	}
	return keys, nil
}

func (s *postgresStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
