package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/pkg/platform/sentinel"
)

func openFileStore(t *testing.T, cfg Config) *fileStore {
	t.Helper()
	s, err := openFile(cfg, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	fs, ok := s.(*fileStore)
	require.True(t, ok)
	return fs
}

func TestFileStore_JournalReplay(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "consent.db")

	s, err := openFile(Config{Path: path}, testLogger())
	require.NoError(t, err)
	require.NoError(t, s.Set(ctx, "a", []byte("1")))
	require.NoError(t, s.Set(ctx, "b", []byte("2")))
	require.NoError(t, s.Delete(ctx, "a"))

	// Abandon the store without Close so no final compact runs; reopening
	// must rebuild state purely from the journal.
	fs := s.(*fileStore)
	fs.mu.Lock()
	require.NoError(t, fs.journalFile.Close())
	fs.journalFile = nil
	fs.closed = true
	fs.mu.Unlock()

	reopened := openFileStore(t, Config{Path: path})

	_, err = reopened.Get(ctx, "a")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	v, err := reopened.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), v)
}

func TestFileStore_ToleratesTornJournalTail(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "consent.db")

	s := openFileStore(t, Config{Path: path})
	require.NoError(t, s.Set(ctx, "intact", []byte("yes")))
	require.NoError(t, s.Close())

	// Simulate a crash mid-write: append garbage to the journal.
	journal := filepath.Join(dir, "consent.journal.jsonl")
	f, err := os.OpenFile(journal, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(`{"op":"set","key":"torn","val`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened := openFileStore(t, Config{Path: path})

	v, err := reopened.Get(ctx, "intact")
	require.NoError(t, err)
	assert.Equal(t, []byte("yes"), v)

	_, err = reopened.Get(ctx, "torn")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}

func TestFileStore_CompactionTruncatesJournal(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "consent.db")

	s := openFileStore(t, Config{Path: path})

	for i := 0; i < compactEvery; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("k%d", i), []byte("v")))
	}

	// The compaction pass leaves an empty journal and a full snapshot.
	info, err := os.Stat(filepath.Join(dir, "consent.journal.jsonl"))
	require.NoError(t, err)
	assert.Zero(t, info.Size())

	snap, err := os.ReadFile(filepath.Join(dir, "consent.snapshot.json"))
	require.NoError(t, err)
	var m map[string][]byte
	require.NoError(t, json.Unmarshal(snap, &m))
	assert.Len(t, m, compactEvery)
}

func TestFileStore_FilePermissions(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "consent.db")

	s := openFileStore(t, Config{Path: path})
	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	require.NoError(t, s.Close())

	// Consent data is personal data; files must not be world-readable.
	for _, name := range []string{"consent.journal.jsonl", "consent.snapshot.json"} {
		info, err := os.Stat(filepath.Join(dir, name))
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o600), info.Mode().Perm(), name)
	}
}

func TestFileStore_ReloadsExternalSnapshot(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "consent.db")

	// Seed and close so the journal is compacted away.
	seed := openFileStore(t, Config{Path: path})
	require.NoError(t, seed.Set(ctx, "old", []byte("1")))
	require.NoError(t, seed.Close())

	s := openFileStore(t, Config{Path: path, WatchFile: true})

	v, err := s.Get(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), v)

	// An external process replaces the snapshot (restored backup).
	replacement, err := json.Marshal(map[string][]byte{"restored": []byte("2")})
	require.NoError(t, err)
	tmp := filepath.Join(dir, "consent.snapshot.json.tmp")
	require.NoError(t, os.WriteFile(tmp, replacement, 0o600))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, "consent.snapshot.json")))

	require.Eventually(t, func() bool {
		_, err := s.Get(ctx, "restored")
		return err == nil
	}, 5*time.Second, 50*time.Millisecond, "watcher should pick up the replaced snapshot")

	_, err = s.Get(ctx, "old")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
