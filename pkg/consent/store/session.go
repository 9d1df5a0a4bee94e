package store

import (
	"context"
	"strings"
	"sync"

	"assent/pkg/domain"
)

// Session scopes a store to a generated session ID. Every key is namespaced
// under the session, so a freshly created Session sees no prior values even
// on a persistent driver, and EndSession wipes exactly this session's data.
type Session struct {
	inner Store

	mu sync.RWMutex
	id domain.SessionID
}

// NewSession wraps a store in a fresh session namespace.
func NewSession(inner Store) *Session {
	return &Session{inner: inner, id: domain.NewSessionID()}
}

// ID returns the current session identifier.
func (s *Session) ID() domain.SessionID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

func (s *Session) scopedKey(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scopePrefixLocked() + key
}

func (s *Session) scopePrefixLocked() string {
	return "sess:" + s.id.String() + ":"
}

func (s *Session) Get(ctx context.Context, key string) ([]byte, error) {
	return s.inner.Get(ctx, s.scopedKey(key))
}

func (s *Session) Set(ctx context.Context, key string, value []byte) error {
	return s.inner.Set(ctx, s.scopedKey(key), value)
}

func (s *Session) Delete(ctx context.Context, key string) error {
	return s.inner.Delete(ctx, s.scopedKey(key))
}

func (s *Session) Has(ctx context.Context, key string) (bool, error) {
	return s.inner.Has(ctx, s.scopedKey(key))
}

func (s *Session) Keys(ctx context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	scope := s.scopePrefixLocked()
	s.mu.RUnlock()

	scoped, err := s.inner.Keys(ctx, scope+prefix)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(scoped))
	for _, k := range scoped {
		keys = append(keys, strings.TrimPrefix(k, scope))
	}
	return keys, nil
}

// EndSession deletes everything stored under the current session and starts
// a fresh one. The wrapper stays usable; subsequent operations see an empty
// namespace.
func (s *Session) EndSession(ctx context.Context) error {
	s.mu.Lock()
	scope := s.scopePrefixLocked()
	s.id = domain.NewSessionID()
	s.mu.Unlock()

	keys, err := s.inner.Keys(ctx, scope)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := s.inner.Delete(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// Close wipes the session namespace and closes the underlying store.
func (s *Session) Close() error {
	// Session data must not outlive the session.
	_ = s.EndSession(context.Background())
	return s.inner.Close()
}
