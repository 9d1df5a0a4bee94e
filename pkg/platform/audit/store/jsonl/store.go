// Package jsonl persists audit events as an append-only JSON Lines file.
// One event per line; the file is never rewritten, so it can be shipped or
// tailed by external tooling.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	audit "assent/pkg/platform/audit"
	"assent/pkg/platform/sentinel"
)

type Store struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// Open creates or opens the audit log at path. Parent directories are
// created as needed. The file is not world-readable: audit lines carry
// subject identifiers.
func Open(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("audit log path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &Store{path: path, file: f}, nil
}

func (s *Store) Append(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return sentinel.ErrClosed
	}
	return json.NewEncoder(s.file).Encode(event)
}

// ListBySubject returns events for one subject, most recent first.
func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]audit.Event, error) {
	events, err := s.scan(ctx, func(ev audit.Event) bool { return ev.SubjectID == subjectID })
	if err != nil {
		return nil, err
	}
	reverse(events)
	return events, nil
}

// ListRecent returns up to limit events, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	events, err := s.scan(ctx, func(audit.Event) bool { return true })
	if err != nil {
		return nil, err
	}
	reverse(events)
	if limit >= 0 && limit < len(events) {
		events = events[:limit]
	}
	return events, nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// scan reads the log through a separate handle so appends keep flowing
// while a list runs.
func (s *Store) scan(ctx context.Context, keep func(audit.Event) bool) ([]audit.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var events []audit.Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var ev audit.Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			// A torn tail write is expected after a crash; skip it.
			continue
		}
		if keep(ev) {
			events = append(events, ev)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

func reverse(events []audit.Event) {
	for i, j := 0, len(events)-1; i < j; i, j = i+1, j-1 {
		events[i], events[j] = events[j], events[i]
	}
}
