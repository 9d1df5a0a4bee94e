package consent

import (
	"context"
	"log/slog"
	"time"

	"assent/pkg/consent/store"
	"assent/pkg/platform/audit/publisher"
	"assent/pkg/platform/metrics"
)

// DefaultStorageKey is the key prefix consent records live under when the
// caller does not pick one.
const DefaultStorageKey = "assent-consent"

// Callbacks let host applications react to consent changes. All fields are
// optional. Dispatch is synchronous on the calling goroutine; a panicking
// callback is recovered, logged, and counted, never propagated.
type Callbacks struct {
	// OnConsentSet fires after a record is stored.
	OnConsentSet func(ctx context.Context, record Record)
	// OnConsentRevoked fires after a record is deleted via RevokeConsent.
	OnConsentRevoked func(ctx context.Context, record Record)
	// OnError fires when the client absorbs an error instead of returning
	// it: storage degradation, failed callbacks, audit problems.
	OnError func(ctx context.Context, err error)
}

// Options configures a Client. The zero value is usable: offline mode with
// an in-memory store under DefaultStorageKey.
type Options struct {
	// Mode selects the operating mode. Empty defaults to offline, the only
	// supported mode.
	Mode string

	// Storage selects and configures the storage driver. Ignored when
	// Store is set.
	Storage store.Config

	// Store supplies a ready storage backend, overriding Storage. The
	// client wraps it with the availability fallback either way and closes
	// it on Close.
	Store store.Store

	// StorageKey prefixes every record key. Defaults to DefaultStorageKey.
	StorageKey string

	// DefaultTTL bounds new records' validity. Zero means records never
	// expire. SetConsent can override per call.
	DefaultTTL time.Duration

	Callbacks Callbacks

	// ReceiptSigningKey enables signed consent receipts when non-empty.
	// Must be at least receipt.MinKeyLength bytes.
	ReceiptSigningKey string
	// ReceiptIssuer is the receipt "iss" claim. Defaults to "assent".
	ReceiptIssuer string

	// PseudonymKey enables subject-ID pseudonymization at the storage
	// boundary when non-empty. Stored records and audit events then carry
	// the pseudonym instead of the raw identifier.
	PseudonymKey []byte

	// SweepSchedule is a cron expression enabling the expiry janitor.
	// Empty disables sweeping; expired records are still pruned on read.
	SweepSchedule string

	// Audit receives consent events. Optional; the caller keeps ownership
	// and closes it after the client.
	Audit *publisher.Publisher

	// Metrics receives counters and histograms. Optional.
	Metrics *metrics.Metrics

	// Logger defaults to slog.Default().
	Logger *slog.Logger

	// BackendURL is accepted for configuration-shape compatibility and
	// ignored in offline mode with a logged warning.
	BackendURL string
}

type setConfig struct {
	metadata map[string]string
	ttl      time.Duration
	ttlSet   bool
}

// SetOption adjusts a single SetConsent call.
type SetOption func(*setConfig)

// WithMetadata attaches caller-defined context to the record.
func WithMetadata(md map[string]string) SetOption {
	return func(c *setConfig) {
		c.metadata = md
	}
}

// WithTTL overrides the client's DefaultTTL for this record. Zero means
// the record never expires.
func WithTTL(ttl time.Duration) SetOption {
	return func(c *setConfig) {
		c.ttl = ttl
		c.ttlSet = true
	}
}
