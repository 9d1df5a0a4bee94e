package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWith_RegistersAndCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWith(reg)

	m.IncConsentsSet()
	m.IncConsentsSet()
	m.IncConsentsRevoked()
	m.IncBannerCheck(true)
	m.IncBannerCheck(false)
	m.IncBannerCheck(false)
	m.IncStorageError("set")
	m.IncStorageFallback()
	m.IncStorageRecovery()
	m.IncCallbackPanic()
	m.IncAuditDropped()
	m.IncRecordsExpired()
	m.ObserveStorageOp("get", 2*time.Millisecond)
	m.SetFallbackState(true)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.ConsentsSet))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ConsentsRevoked))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.BannerChecks.WithLabelValues("show")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.BannerChecks.WithLabelValues("skip")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.StorageErrors.WithLabelValues("set")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.FallbackState))

	m.SetFallbackState(false)
	assert.Equal(t, float64(0), testutil.ToFloat64(m.FallbackState))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// None of these may panic
	m.IncConsentsSet()
	m.IncConsentsRevoked()
	m.IncBannerCheck(true)
	m.IncStorageError("get")
	m.IncStorageFallback()
	m.IncStorageRecovery()
	m.IncCallbackPanic()
	m.IncAuditDropped()
	m.IncRecordsExpired()
	m.ObserveStorageOp("set", time.Millisecond)
	m.SetFallbackState(true)
}
