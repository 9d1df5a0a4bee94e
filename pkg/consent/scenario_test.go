package consent

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assent/pkg/consent/store"
	"assent/pkg/domain"
	"assent/pkg/testutil"
)

// TestBannerLifecycleAcrossRestarts walks the integration's core promise
// end to end: the banner shows exactly while no record exists, and a
// restarted client over the same file sees the previous decision.
func TestBannerLifecycleAcrossRestarts(t *testing.T) {
	ctx := context.Background()
	options := Options{
		Storage: store.Config{
			Driver: store.DriverFile,
			Path:   filepath.Join(t.TempDir(), "consent.json"),
		},
		Logger: testLogger(),
	}

	testutil.Given(t, "a fresh installation", func(t *testing.T) {
		client := newTestClient(t, options)

		testutil.Then(t, "the banner shows", func(t *testing.T) {
			show, err := client.ShowConsentBanner(ctx, "resident")
			require.NoError(t, err)
			assert.True(t, show)
		})

		testutil.When(t, "the subject grants analytics", func(t *testing.T) {
			_, err := client.SetConsent(ctx, "resident", map[domain.Purpose]bool{
				domain.PurposeNecessary: true,
				domain.PurposeAnalytics: true,
			})
			require.NoError(t, err)

			testutil.Then(t, "the banner goes away", func(t *testing.T) {
				show, err := client.ShowConsentBanner(ctx, "resident")
				require.NoError(t, err)
				assert.False(t, show)
			})
		})

		require.NoError(t, client.Close())
	})

	testutil.Given(t, "a new client over the same file", func(t *testing.T) {
		client := newTestClient(t, options)

		testutil.Then(t, "the decision survives the restart", func(t *testing.T) {
			show, err := client.ShowConsentBanner(ctx, "resident")
			require.NoError(t, err)
			assert.False(t, show)

			granted, err := client.HasConsented(ctx, "resident", domain.PurposeAnalytics)
			require.NoError(t, err)
			assert.True(t, granted)
		})

		testutil.When(t, "the subject revokes", func(t *testing.T) {
			require.NoError(t, client.RevokeConsent(ctx, "resident"))

			testutil.Then(t, "the banner re-arms", func(t *testing.T) {
				show, err := client.ShowConsentBanner(ctx, "resident")
				require.NoError(t, err)
				assert.True(t, show)
			})
		})
	})
}
