// Package store provides the storage backends a consent client can persist
// records to. One Store interface, several interchangeable drivers: callers
// pick a driver by name in Config, the client never sees the difference.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is a key-value view over a storage backend. Values are opaque bytes;
// the client persists JSON-encoded consent records.
//
// Implementations must be safe for concurrent use. Get returns
// sentinel.ErrNotFound (possibly wrapped) when the key is absent; Delete of
// a missing key is a no-op.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Has(ctx context.Context, key string) (bool, error)
	Keys(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Supported driver names.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverBolt     = "bolt"
	DriverRedis    = "redis"
	DriverPostgres = "postgres"
)

// Scope selects the lifetime of stored values.
type Scope string

const (
	// ScopePersistent keeps values until they are deleted.
	ScopePersistent Scope = "persistent"
	// ScopeSession namespaces values under a generated session ID; a new
	// session starts empty and ending the session wipes its namespace.
	ScopeSession Scope = "session"
)

// Config configures storage.
//
// Driver values:
//   - "memory": in-process map, lost on exit
//   - "file": JSON journal + snapshot files
//   - "sqlite": SQLite database file
//   - "bolt": BoltDB database file
//   - "redis": Redis server
//   - "postgres": PostgreSQL database
//
// If Driver is empty, "memory" is used.
type Config struct {
	Driver string
	Scope  Scope

	// Path is the backing file for the file, sqlite, and bolt drivers.
	Path string

	// DSN is the connection string for the postgres driver.
	DSN string

	// Redis connection settings.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// KeyPrefix namespaces keys in shared backends (redis). Defaults to
	// "assent:".
	KeyPrefix string

	// BusyTimeout applies to sqlite only; 0 means default.
	BusyTimeout time.Duration

	// WatchFile enables reloading the file driver's snapshot when an
	// external process replaces it.
	WatchFile bool
}

// Open selects and opens the configured driver. ScopeSession wraps the
// driver in a session namespace; see Session.
//
// An unknown driver is an error here. The client turns that error into its
// in-memory fallback; Open itself stays honest.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var (
		s   Store
		err error
	)
	switch cfg.Driver {
	case "", DriverMemory:
		s = NewMemory()
	case DriverFile:
		s, err = openFile(cfg, logger)
	case DriverSQLite:
		s, err = openSQLite(ctx, cfg)
	case DriverBolt:
		s, err = openBolt(cfg)
	case DriverRedis:
		s, err = openRedis(ctx, cfg)
	case DriverPostgres:
		s, err = openPostgres(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	if cfg.Scope == ScopeSession {
		return NewSession(s), nil
	}
	return s, nil
}

// Drivers returns the supported driver names in a stable order.
func Drivers() []string {
	return []string{DriverMemory, DriverFile, DriverSQLite, DriverBolt, DriverRedis, DriverPostgres}
}
