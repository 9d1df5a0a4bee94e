// Package metrics holds the Prometheus collectors for the consent client.
// All methods are nil-receiver safe so instrumentation stays optional.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the consent client.
type Metrics struct {
	ConsentsSet       prometheus.Counter
	ConsentsRevoked   prometheus.Counter
	BannerChecks      *prometheus.CounterVec
	StorageErrors     *prometheus.CounterVec
	StorageFallbacks  prometheus.Counter
	StorageRecoveries prometheus.Counter
	CallbackPanics    prometheus.Counter
	AuditDropped      prometheus.Counter
	RecordsExpired    prometheus.Counter
	StorageOpDuration *prometheus.HistogramVec
	FallbackState     prometheus.Gauge
}

// New creates and registers all metrics on the default registerer.
func New() *Metrics {
	return NewWith(prometheus.DefaultRegisterer)
}

// NewWith creates all metrics on the given registerer. Tests pass a fresh
// prometheus.NewRegistry to avoid duplicate registration panics.
func NewWith(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ConsentsSet: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_consents_set_total",
			Help: "Total number of consent decisions recorded",
		}),
		ConsentsRevoked: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_consents_revoked_total",
			Help: "Total number of consent decisions revoked",
		}),
		BannerChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_banner_checks_total",
			Help: "Total number of banner visibility checks by result",
		}, []string{"result"}),
		StorageErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "assent_storage_errors_total",
			Help: "Total number of storage operation failures by operation",
		}, []string{"op"}),
		StorageFallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_storage_fallbacks_total",
			Help: "Total number of transitions onto the in-memory fallback store",
		}),
		StorageRecoveries: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_storage_recoveries_total",
			Help: "Total number of recoveries back onto the primary store",
		}),
		CallbackPanics: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_callback_panics_total",
			Help: "Total number of panics recovered from user callbacks",
		}),
		AuditDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_audit_dropped_total",
			Help: "Total number of audit events dropped due to backpressure",
		}),
		RecordsExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "assent_records_expired_total",
			Help: "Total number of consent records pruned after expiry",
		}),
		StorageOpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "assent_storage_op_duration_seconds",
			Help:    "Latency of storage operations by operation",
			Buckets: []float64{0.0001, 0.00025, 0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25},
		}, []string{"op"}),
		FallbackState: factory.NewGauge(prometheus.GaugeOpts{
			Name: "assent_fallback_state",
			Help: "Current fallback state (0=primary serving, 1=fallback serving)",
		}),
	}
}

// IncConsentsSet increments the consents set counter.
func (m *Metrics) IncConsentsSet() {
	if m == nil {
		return
	}
	m.ConsentsSet.Inc()
}

// IncConsentsRevoked increments the consents revoked counter.
func (m *Metrics) IncConsentsRevoked() {
	if m == nil {
		return
	}
	m.ConsentsRevoked.Inc()
}

// IncBannerCheck increments the banner check counter for the given result.
func (m *Metrics) IncBannerCheck(show bool) {
	if m == nil {
		return
	}
	result := "skip"
	if show {
		result = "show"
	}
	m.BannerChecks.WithLabelValues(result).Inc()
}

// IncStorageError increments the storage error counter for the operation.
func (m *Metrics) IncStorageError(op string) {
	if m == nil {
		return
	}
	m.StorageErrors.WithLabelValues(op).Inc()
}

// IncStorageFallback increments the fallback transition counter.
func (m *Metrics) IncStorageFallback() {
	if m == nil {
		return
	}
	m.StorageFallbacks.Inc()
}

// IncStorageRecovery increments the primary recovery counter.
func (m *Metrics) IncStorageRecovery() {
	if m == nil {
		return
	}
	m.StorageRecoveries.Inc()
}

// IncCallbackPanic increments the recovered callback panic counter.
func (m *Metrics) IncCallbackPanic() {
	if m == nil {
		return
	}
	m.CallbackPanics.Inc()
}

// IncAuditDropped increments the dropped audit event counter.
func (m *Metrics) IncAuditDropped() {
	if m == nil {
		return
	}
	m.AuditDropped.Inc()
}

// IncRecordsExpired increments the expired record counter.
func (m *Metrics) IncRecordsExpired() {
	if m == nil {
		return
	}
	m.RecordsExpired.Inc()
}

// ObserveStorageOp records the latency of one storage operation.
func (m *Metrics) ObserveStorageOp(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.StorageOpDuration.WithLabelValues(op).Observe(d.Seconds())
}

// SetFallbackState sets the fallback state gauge.
func (m *Metrics) SetFallbackState(open bool) {
	if m == nil {
		return
	}
	if open {
		m.FallbackState.Set(1)
	} else {
		m.FallbackState.Set(0)
	}
}
