package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/pkg/platform/sentinel"
)

func TestSession_IsolatedFromPriorSessions(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()

	first := NewSession(inner)
	require.NoError(t, first.Set(ctx, "consent", []byte("granted")))

	v, err := first.Get(ctx, "consent")
	require.NoError(t, err)
	assert.Equal(t, []byte("granted"), v)

	// A new session over the same backend sees nothing.
	second := NewSession(inner)
	_, err = second.Get(ctx, "consent")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	ok, err := second.Has(ctx, "consent")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSession_EndSessionWipesOnlyOwnNamespace(t *testing.T) {
	ctx := context.Background()
	inner := NewMemory()

	// Unscoped data lives alongside the session namespace.
	require.NoError(t, inner.Set(ctx, "persistent-key", []byte("stays")))

	sess := NewSession(inner)
	require.NoError(t, sess.Set(ctx, "consent", []byte("granted")))
	require.NoError(t, sess.Set(ctx, "banner", []byte("dismissed")))

	require.NoError(t, sess.EndSession(ctx))

	// Session data is gone even through a fresh namespace.
	_, err := sess.Get(ctx, "consent")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	// Unscoped data survives.
	v, err := inner.Get(ctx, "persistent-key")
	require.NoError(t, err)
	assert.Equal(t, []byte("stays"), v)

	// Only the persistent key remains in the backend.
	assert.Equal(t, 1, inner.Len())
}

func TestSession_EndSessionStartsFresh(t *testing.T) {
	ctx := context.Background()
	sess := NewSession(NewMemory())

	firstID := sess.ID()
	require.NoError(t, sess.Set(ctx, "consent", []byte("granted")))
	require.NoError(t, sess.EndSession(ctx))

	assert.NotEqual(t, firstID, sess.ID())

	// The wrapper stays usable after the wipe.
	require.NoError(t, sess.Set(ctx, "consent", []byte("again")))
	v, err := sess.Get(ctx, "consent")
	require.NoError(t, err)
	assert.Equal(t, []byte("again"), v)
}

func TestSession_KeysStripNamespace(t *testing.T) {
	ctx := context.Background()
	sess := NewSession(NewMemory())

	require.NoError(t, sess.Set(ctx, "consent:ada", []byte("a")))
	require.NoError(t, sess.Set(ctx, "consent:grace", []byte("g")))
	require.NoError(t, sess.Set(ctx, "other", []byte("o")))

	keys, err := sess.Keys(ctx, "consent:")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"consent:ada", "consent:grace"}, keys)
}

func TestSession_OverPersistentDriver(t *testing.T) {
	// Session semantics must hold even when the backend itself persists.
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "consent.db")

	s, err := Open(ctx, Config{Driver: DriverFile, Path: path, Scope: ScopeSession}, testLogger())
	require.NoError(t, err)

	sess, ok := s.(*Session)
	require.True(t, ok)

	require.NoError(t, sess.Set(ctx, "consent", []byte("granted")))
	require.NoError(t, s.Close())

	// Reopening yields a new session; the old session's data is unreachable.
	s2, err := Open(ctx, Config{Driver: DriverFile, Path: path, Scope: ScopeSession}, testLogger())
	require.NoError(t, err)
	defer s2.Close()

	_, err = s2.Get(ctx, "consent")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
}
