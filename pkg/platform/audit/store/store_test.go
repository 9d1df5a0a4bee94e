package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	audit "assent/pkg/platform/audit"
)

func TestResolvedDriver(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "empty config means memory", cfg: Config{}, want: DriverMemory},
		{name: "bare path means jsonl", cfg: Config{Path: "/tmp/audit.jsonl"}, want: DriverJSONL},
		{name: "explicit driver wins over path", cfg: Config{Driver: DriverPostgres, Path: "/tmp/audit.jsonl"}, want: DriverPostgres},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cfg.ResolvedDriver())
		})
	}
}

func TestOpen_MemoryRoundTrip(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, audit.Event{
		Timestamp: time.Now(),
		Action:    audit.ActionConsentSet,
		SubjectID: "ada",
		Decision:  audit.DecisionGranted,
	}))

	events, err := s.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, audit.ActionConsentSet, events[0].Action)
}

func TestOpen_JSONLCreatesFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "trail.jsonl")

	s, err := Open(ctx, Config{Path: path})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Append(ctx, audit.Event{
		Timestamp: time.Now(),
		Action:    audit.ActionConsentRevoked,
		SubjectID: "ada",
	}))

	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestOpen_Errors(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{name: "jsonl without path", cfg: Config{Driver: DriverJSONL}, want: "requires a path"},
		{name: "postgres without dsn", cfg: Config{Driver: DriverPostgres}, want: "DSN is required"},
		{name: "kafka without brokers", cfg: Config{Driver: DriverKafka}, want: "broker"},
		{name: "unknown driver", cfg: Config{Driver: "carrier-pigeon"}, want: `unknown audit driver "carrier-pigeon"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Open(ctx, tt.cfg)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
