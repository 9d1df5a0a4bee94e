package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "assent/pkg/domain-errors"
)

func TestParsePurpose(t *testing.T) {
	t.Run("accepts supported purposes", func(t *testing.T) {
		for _, p := range AllPurposes() {
			got, err := ParsePurpose(p.String())
			require.NoError(t, err, p)
			assert.Equal(t, p, got)
		}
	})

	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParsePurpose("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects unknown", func(t *testing.T) {
		_, err := ParsePurpose("telemetry")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("case sensitive", func(t *testing.T) {
		_, err := ParsePurpose("Analytics")
		require.Error(t, err)
	})
}

func TestPurposeIsEssential(t *testing.T) {
	assert.True(t, PurposeNecessary.IsEssential())
	assert.False(t, PurposeAnalytics.IsEssential())
	assert.False(t, PurposeMarketing.IsEssential())
}
