package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assent/pkg/domain-errors"
)

func TestParseMode(t *testing.T) {
	t.Run("empty defaults to offline", func(t *testing.T) {
		m, err := ParseMode("")
		require.NoError(t, err)
		assert.Equal(t, ModeOffline, m)
	})

	t.Run("offline is supported", func(t *testing.T) {
		m, err := ParseMode("offline")
		require.NoError(t, err)
		assert.True(t, m.IsSupported())
	})

	t.Run("hosted is recognized but unsupported", func(t *testing.T) {
		_, err := ParseMode("hosted")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeUnsupported))
	})

	t.Run("unknown mode rejected", func(t *testing.T) {
		_, err := ParseMode("p2p")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})
}
