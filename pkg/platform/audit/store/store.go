// Package store selects an audit sink by driver name, the same shape the
// consent storage layer uses.
package store

import (
	"context"
	"errors"
	"fmt"

	audit "assent/pkg/platform/audit"
	"assent/pkg/platform/audit/store/jsonl"
	"assent/pkg/platform/audit/store/kafka"
	"assent/pkg/platform/audit/store/memory"
	"assent/pkg/platform/audit/store/postgres"
)

// Driver names for Config.Driver.
const (
	DriverMemory   = "memory"
	DriverJSONL    = "jsonl"
	DriverPostgres = "postgres"
	DriverKafka    = "kafka"
)

// Config selects and configures the audit sink.
type Config struct {
	// Driver picks the sink. Empty resolves to jsonl when Path is set,
	// otherwise memory.
	Driver string

	// Path is the log file for the jsonl driver.
	Path string

	// DSN is the connection string for the postgres driver.
	DSN string

	// Brokers and Topic configure the kafka driver. An empty topic uses
	// the driver's default.
	Brokers []string
	Topic   string
}

// ResolvedDriver applies the defaulting rule: an explicit driver wins, a
// bare path means jsonl, and nothing at all means the in-memory ring.
func (c Config) ResolvedDriver() string {
	if c.Driver != "" {
		return c.Driver
	}
	if c.Path != "" {
		return DriverJSONL
	}
	return DriverMemory
}

// Open builds the configured audit store.
func Open(ctx context.Context, cfg Config) (audit.Store, error) {
	switch driver := cfg.ResolvedDriver(); driver {
	case DriverMemory:
		return memory.New(0), nil
	case DriverJSONL:
		if cfg.Path == "" {
			return nil, errors.New("jsonl audit driver requires a path")
		}
		return jsonl.Open(cfg.Path)
	case DriverPostgres:
		return postgres.Open(ctx, cfg.DSN)
	case DriverKafka:
		return kafka.New(cfg.Brokers, cfg.Topic)
	default:
		return nil, fmt.Errorf("unknown audit driver %q", driver)
	}
}
