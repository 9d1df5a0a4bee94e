package store

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"assent/pkg/platform/sentinel"
)

// fileStore is a single-file persistence backend.
//
// Files:
//   - <prefix>.snapshot.json (periodic snapshot of all keys)
//   - <prefix>.journal.jsonl (append-only journal of set/delete ops)
//
// The journal is periodically compacted into the snapshot. With WatchFile
// enabled, an external replacement of the snapshot (a restored backup)
// reloads in-memory state; entries still in the journal are replayed on top.
type fileStore struct {
	logger *slog.Logger

	mu sync.Mutex

	snapshotPath string
	journalPath  string
	journalFile  *os.File

	values map[string][]byte
	writes int

	// lastSnapshotHash suppresses reloads triggered by our own compaction.
	lastSnapshotHash uint64

	watcher *fsnotify.Watcher
	done    chan struct{}
	closed  bool
}

const compactEvery = 256

type journalEntry struct {
	Op    string `json:"op"` // "set" or "delete"
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
}

func openFile(cfg Config, logger *slog.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage path is required for file driver")
	}

	dir := filepath.Dir(path)
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(filepath.Base(path)))
	prefix := filepath.Join(dir, base)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	s := &fileStore{
		logger:       logger,
		snapshotPath: prefix + ".snapshot.json",
		journalPath:  prefix + ".journal.jsonl",
		values:       map[string][]byte{},
		done:         make(chan struct{}),
	}

	if err := s.loadLocked(); err != nil {
		return nil, err
	}

	jf, err := os.OpenFile(s.journalPath, os.O_CREATE|os.O_APPEND|os.O_RDWR, 0o600)
	if err != nil {
		return nil, err
	}
	s.journalFile = jf

	if cfg.WatchFile {
		if err := s.startWatcher(dir); err != nil {
			_ = jf.Close()
			return nil, err
		}
	}

	return s, nil
}

func (s *fileStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.values[key]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *fileStore) Set(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return sentinel.ErrClosed
	}

	v := make([]byte, len(value))
	copy(v, value)
	s.values[key] = v

	if err := json.NewEncoder(s.journalFile).Encode(journalEntry{Op: "set", Key: key, Value: v}); err != nil {
		return err
	}
	s.writes++
	if s.writes%compactEvery == 0 {
		// Best-effort compact.
		if err := s.compactLocked(); err != nil {
			s.logger.Debug("snapshot compact failed", "path", s.snapshotPath, "error", err)
		}
	}
	return nil
}

func (s *fileStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.journalFile == nil {
		return sentinel.ErrClosed
	}
	if _, ok := s.values[key]; !ok {
		return nil
	}
	delete(s.values, key)
	return json.NewEncoder(s.journalFile).Encode(journalEntry{Op: "delete", Key: key})
}

func (s *fileStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.values[key]
	return ok, nil
}

func (s *fileStore) Keys(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	if s.watcher != nil {
		close(s.done)
		_ = s.watcher.Close()
		s.watcher = nil
	}
	if s.journalFile == nil {
		return nil
	}
	// Final compact so the next open replays a minimal journal.
	if err := s.compactLocked(); err != nil {
		s.logger.Debug("final compact failed", "path", s.snapshotPath, "error", err)
	}
	err := s.journalFile.Close()
	s.journalFile = nil
	return err
}

// loadLocked rebuilds in-memory state from snapshot + journal.
func (s *fileStore) loadLocked() error {
	values := map[string][]byte{}
	hash, err := loadSnapshot(s.snapshotPath, values)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load snapshot: %w", err)
	}
	if err := replayJournal(s.journalPath, values); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("replay journal: %w", err)
	}
	s.values = values
	s.lastSnapshotHash = hash
	return nil
}

func (s *fileStore) compactLocked() error {
	tmp := s.snapshotPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if err := json.NewEncoder(f).Encode(s.values); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.snapshotPath); err != nil {
		return err
	}

	b, err := os.ReadFile(s.snapshotPath)
	if err == nil {
		s.lastSnapshotHash = hashBytes(b)
	}

	// Truncate journal.
	if err := s.journalFile.Truncate(0); err != nil {
		return err
	}
	_, err = s.journalFile.Seek(0, 2)
	return err
}

func (s *fileStore) startWatcher(dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return err
	}
	s.watcher = w

	go s.watchLoop(w)
	return nil
}

// watchLoop reloads state when the snapshot changes on disk. Events are
// debounced to avoid reading partial writes; the content hash suppresses
// reloads caused by our own compaction.
func (s *fileStore) watchLoop(w *fsnotify.Watcher) {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(250*time.Millisecond, s.reload)
	}

	for {
		select {
		case <-s.done:
			return
		case ev, ok := <-w.Events:
			if !ok {
				return
			}
			if ev.Name != s.snapshotPath {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			debounce()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Debug("snapshot watcher error", "error", err)
		}
	}
}

func (s *fileStore) reload() {
	b, err := os.ReadFile(s.snapshotPath)
	if err != nil {
		s.logger.Warn("snapshot reload failed", "path", s.snapshotPath, "error", err)
		return
	}
	h := hashBytes(b)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || h == s.lastSnapshotHash {
		return
	}
	if err := s.loadLocked(); err != nil {
		s.logger.Warn("snapshot reload failed", "path", s.snapshotPath, "error", err)
		return
	}
	s.lastSnapshotHash = h
	s.logger.Info("storage snapshot reloaded from disk", "path", s.snapshotPath, "keys", len(s.values))
}

func loadSnapshot(path string, out map[string][]byte) (uint64, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var m map[string][]byte
	if err := json.Unmarshal(b, &m); err != nil {
		return 0, err
	}
	for k, v := range m {
		out[k] = v
	}
	return hashBytes(b), nil
}

func replayJournal(path string, out map[string][]byte) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		var e journalEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			// A torn tail write is expected after a crash; skip it.
			continue
		}
		switch e.Op {
		case "set":
			out[e.Key] = e.Value
		case "delete":
			delete(out, e.Key)
		}
	}
	return sc.Err()
}

func hashBytes(b []byte) uint64 {
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}
