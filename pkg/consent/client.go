// Package consent implements the offline consent client: records live in a
// pluggable local store, banner visibility is a pure presence check, and a
// degraded store downgrades to in-memory operation instead of failing calls.
package consent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"assent/pkg/consent/store"
	"assent/pkg/domain"
	dErrors "assent/pkg/domain-errors"
	"assent/pkg/platform/audit"
	"assent/pkg/platform/audit/publisher"
	"assent/pkg/platform/metrics"
	"assent/pkg/platform/pseudo"
	"assent/pkg/platform/sentinel"
	"assent/pkg/receipt"
	"assent/pkg/requestcontext"
)

// Client manages consent records for one storage namespace. It is safe for
// concurrent use. All reads and writes go through the availability fallback,
// so storage outages degrade to in-memory operation rather than surfacing on
// every call.
type Client struct {
	mode   domain.Mode
	store  *store.Fallback
	driver string
	key    string
	ttl    time.Duration

	cb     Callbacks
	issuer *receipt.Issuer
	pseudo *pseudo.Pseudonymizer

	audit   *publisher.Publisher
	metrics *metrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer

	locks subjectLocks
	cron  *cron.Cron

	closeOnce sync.Once
	closeErr  error
}

// New builds a Client from options.
//
// Storage trouble never fails construction: when the configured driver cannot
// be opened the client logs a warning, reports through OnError, and starts on
// an in-memory store. Configuration mistakes do fail: an unsupported mode, a
// short signing or pseudonym key, or an invalid sweep schedule return
// CodeInvalidInput (mode: CodeUnsupported).
func New(opts Options) (*Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := domain.ParseMode(opts.Mode)
	if err != nil {
		return nil, err
	}

	key := opts.StorageKey
	if key == "" {
		key = DefaultStorageKey
	}

	c := &Client{
		mode:    mode,
		key:     key,
		ttl:     opts.DefaultTTL,
		cb:      opts.Callbacks,
		audit:   opts.Audit,
		metrics: opts.Metrics,
		logger:  logger,
		tracer:  otel.Tracer("assent"),
	}

	if opts.BackendURL != "" {
		logger.Warn("backend URL ignored: client operates offline",
			"backend_url", opts.BackendURL)
	}

	if opts.ReceiptSigningKey != "" {
		issuer, err := receipt.NewIssuer(opts.ReceiptSigningKey, opts.ReceiptIssuer)
		if err != nil {
			return nil, err
		}
		c.issuer = issuer
	}

	if len(opts.PseudonymKey) > 0 {
		p, err := pseudo.New(opts.PseudonymKey)
		if err != nil {
			return nil, err
		}
		c.pseudo = p
	}

	primary, driver := c.openPrimary(opts)
	c.driver = driver
	c.store = store.NewFallback(primary,
		store.WithName(driver),
		store.WithLogger(logger),
		store.WithMetrics(opts.Metrics),
		store.WithOnError(func(err error) {
			c.dispatchError(context.Background(), err)
		}),
		store.WithOnTransition(c.onStorageTransition),
	)

	if opts.SweepSchedule != "" {
		if err := c.startJanitor(opts.SweepSchedule); err != nil {
			_ = c.store.Close()
			return nil, err
		}
	}

	logger.Info("consent client configured",
		"mode", mode,
		"driver", driver,
		"storage_key", key,
		"receipts", c.issuer != nil,
		"pseudonymized", c.pseudo.Enabled(),
	)
	return c, nil
}

// Configure is an alias for New, matching the verb integrators use when
// wiring the client at application start.
func Configure(opts Options) (*Client, error) {
	return New(opts)
}

// openPrimary resolves the primary store and the driver name used for logs,
// metric labels, and audit events. A failed open is absorbed here; the
// returned memory store keeps the client functional.
func (c *Client) openPrimary(opts Options) (store.Store, string) {
	if opts.Store != nil {
		return opts.Store, "custom"
	}

	driver := opts.Storage.Driver
	if driver == "" {
		driver = store.DriverMemory
	}

	primary, err := store.Open(context.Background(), opts.Storage, c.logger)
	if err != nil {
		c.logger.Warn("storage unavailable, continuing with in-memory records",
			"driver", driver, "error", err)
		c.metrics.IncStorageError("open")
		c.dispatchError(context.Background(), err)
		c.emitAudit(context.Background(), audit.Event{
			Action: audit.ActionStorageFallback,
			Driver: driver,
			Reason: "driver failed to open, records held in memory",
		})
		return store.NewMemory(), driver
	}
	return primary, driver
}

// SetConsent records the subject's decisions, replacing any previous record.
// The returned Record carries the generated ID, timestamps, and the signed
// receipt when receipts are configured.
//
// Errors: CodeInvalidInput for a bad subject, empty preferences, or an
// unknown purpose. Storage availability problems do not surface here.
func (c *Client) SetConsent(ctx context.Context, subjectID string, preferences map[domain.Purpose]bool, opts ...SetOption) (Record, error) {
	ctx, span := c.tracer.Start(ctx, "consent.set")
	defer span.End()

	subject, err := domain.ParseSubjectID(subjectID)
	if err != nil {
		return Record{}, c.fail(span, err)
	}
	if len(preferences) == 0 {
		return Record{}, c.fail(span, dErrors.New(dErrors.CodeInvalidInput,
			"at least one purpose decision is required"))
	}
	for p := range preferences {
		if !p.IsValid() {
			return Record{}, c.fail(span, dErrors.Newf(dErrors.CodeInvalidInput,
				"unknown purpose %q", p))
		}
	}

	cfg := setConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	ttl := c.ttl
	if cfg.ttlSet {
		ttl = cfg.ttl
	}

	storageSubject := c.storageSubject(subject)
	span.SetAttributes(
		attribute.String("assent.driver", c.driver),
		attribute.String("assent.subject", c.spanSubject(storageSubject)),
	)

	now := time.Now().UTC()
	rec := Record{
		ID:          domain.NewRecordID(),
		SubjectID:   storageSubject,
		Preferences: clonePreferences(preferences),
		Metadata:    cloneMetadata(cfg.metadata),
		GivenAt:     now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		rec.ExpiresAt = &expires
	}

	if c.issuer != nil {
		signed, err := c.issuer.Issue(receipt.Grant{
			RecordID:    rec.ID.String(),
			SubjectID:   storageSubject,
			Purposes:    rec.GrantedPurposes(),
			Preferences: preferencesAsStrings(rec.Preferences),
			GivenAt:     now,
			ExpiresAt:   rec.ExpiresAt,
		})
		if err != nil {
			return Record{}, c.fail(span, err)
		}
		rec.Receipt = signed
	}

	raw, err := encodeRecord(rec)
	if err != nil {
		return Record{}, c.fail(span, err)
	}

	unlock := c.locks.lock(storageSubject)
	err = c.store.Set(ctx, c.recordKey(storageSubject), raw)
	unlock()
	if err != nil {
		return Record{}, c.fail(span, dErrors.Wrap(err, dErrors.CodeUnavailable,
			"persist consent record"))
	}

	c.metrics.IncConsentsSet()
	c.emitAudit(ctx, audit.Event{
		Action:    audit.ActionConsentSet,
		SubjectID: storageSubject,
		RecordID:  rec.ID.String(),
		Purposes:  rec.GrantedPurposes(),
		Driver:    c.driver,
	})
	if c.cb.OnConsentSet != nil {
		c.safely(ctx, "on_consent_set", func() { c.cb.OnConsentSet(ctx, rec) })
	}

	span.SetStatus(codes.Ok, "")
	return rec, nil
}

// ShowConsentBanner reports whether the subject must be shown the consent
// banner: true exactly when no active record exists for them. Expired and
// unreadable records are pruned on the way and count as absent. Storage
// trouble also answers true, the safe direction for a consent prompt.
//
// Errors: CodeInvalidInput for a bad subject.
func (c *Client) ShowConsentBanner(ctx context.Context, subjectID string) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "consent.banner")
	defer span.End()

	subject, err := domain.ParseSubjectID(subjectID)
	if err != nil {
		return false, c.fail(span, err)
	}
	storageSubject := c.storageSubject(subject)
	span.SetAttributes(
		attribute.String("assent.driver", c.driver),
		attribute.String("assent.subject", c.spanSubject(storageSubject)),
	)

	show := true
	_, err = c.loadActive(ctx, storageSubject)
	switch {
	case err == nil:
		show = false
	case errors.Is(err, sentinel.ErrNotFound):
		show = true
	default:
		c.logger.WarnContext(ctx, "banner check could not read storage, answering show",
			"error", err)
		c.dispatchError(ctx, err)
	}

	c.metrics.IncBannerCheck(show)
	decision := audit.DecisionSkip
	if show {
		decision = audit.DecisionShow
	}
	c.emitAudit(ctx, audit.Event{
		Action:    audit.ActionBannerEvaluated,
		SubjectID: storageSubject,
		Decision:  decision,
		Driver:    c.driver,
	})

	span.SetAttributes(attribute.Bool("assent.banner.show", show))
	span.SetStatus(codes.Ok, "")
	return show, nil
}

// GetConsent returns the subject's active consent record.
//
// Errors: CodeInvalidInput for a bad subject; CodeNotFound (matching
// sentinel.ErrNotFound) when no active record exists, including records that
// just expired; CodeUnavailable when storage failed in a way the fallback
// could not absorb.
func (c *Client) GetConsent(ctx context.Context, subjectID string) (Record, error) {
	ctx, span := c.tracer.Start(ctx, "consent.get")
	defer span.End()

	subject, err := domain.ParseSubjectID(subjectID)
	if err != nil {
		return Record{}, c.fail(span, err)
	}
	storageSubject := c.storageSubject(subject)
	span.SetAttributes(
		attribute.String("assent.driver", c.driver),
		attribute.String("assent.subject", c.spanSubject(storageSubject)),
	)

	rec, err := c.loadActive(ctx, storageSubject)
	if err != nil {
		return Record{}, c.fail(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return rec, nil
}

// HasConsented reports whether the subject's active record grants a purpose.
// A missing record answers false without error; only the check itself can
// fail.
//
// Errors: CodeInvalidInput for a bad subject or purpose; CodeUnavailable when
// storage failed in a way the fallback could not absorb.
func (c *Client) HasConsented(ctx context.Context, subjectID string, purpose domain.Purpose) (bool, error) {
	ctx, span := c.tracer.Start(ctx, "consent.check")
	defer span.End()

	subject, err := domain.ParseSubjectID(subjectID)
	if err != nil {
		return false, c.fail(span, err)
	}
	if !purpose.IsValid() {
		return false, c.fail(span, dErrors.Newf(dErrors.CodeInvalidInput,
			"unknown purpose %q", purpose))
	}
	storageSubject := c.storageSubject(subject)
	span.SetAttributes(
		attribute.String("assent.driver", c.driver),
		attribute.String("assent.subject", c.spanSubject(storageSubject)),
		attribute.String("assent.purpose", purpose.String()),
	)

	rec, err := c.loadActive(ctx, storageSubject)
	if errors.Is(err, sentinel.ErrNotFound) {
		c.auditCheck(ctx, storageSubject, "", purpose, false)
		span.SetStatus(codes.Ok, "")
		return false, nil
	}
	if err != nil {
		return false, c.fail(span, err)
	}

	granted := rec.Grants(purpose, time.Now())
	c.auditCheck(ctx, storageSubject, rec.ID.String(), purpose, granted)
	span.SetStatus(codes.Ok, "")
	return granted, nil
}

// RevokeConsent deletes the subject's consent record. Revoking a subject
// without a record is a no-op: no error, no events.
//
// Errors: CodeInvalidInput for a bad subject; CodeUnavailable when storage
// failed in a way the fallback could not absorb.
func (c *Client) RevokeConsent(ctx context.Context, subjectID string) error {
	ctx, span := c.tracer.Start(ctx, "consent.revoke")
	defer span.End()

	subject, err := domain.ParseSubjectID(subjectID)
	if err != nil {
		return c.fail(span, err)
	}
	storageSubject := c.storageSubject(subject)
	span.SetAttributes(
		attribute.String("assent.driver", c.driver),
		attribute.String("assent.subject", c.spanSubject(storageSubject)),
	)

	unlock := c.locks.lock(storageSubject)
	raw, err := c.store.Get(ctx, c.recordKey(storageSubject))
	if errors.Is(err, sentinel.ErrNotFound) {
		unlock()
		span.SetStatus(codes.Ok, "")
		return nil
	}
	if err != nil {
		unlock()
		return c.fail(span, dErrors.Wrap(err, dErrors.CodeUnavailable,
			"read consent record"))
	}
	err = c.store.Delete(ctx, c.recordKey(storageSubject))
	unlock()
	if err != nil {
		return c.fail(span, dErrors.Wrap(err, dErrors.CodeUnavailable,
			"delete consent record"))
	}

	c.metrics.IncConsentsRevoked()
	event := audit.Event{
		Action:    audit.ActionConsentRevoked,
		SubjectID: storageSubject,
		Driver:    c.driver,
	}
	rec, decodeErr := decodeRecord(raw)
	if decodeErr == nil {
		event.RecordID = rec.ID.String()
		event.Purposes = rec.GrantedPurposes()
	} else {
		event.Reason = "record was unreadable at revocation"
	}
	c.emitAudit(ctx, event)

	if decodeErr == nil && c.cb.OnConsentRevoked != nil {
		c.safely(ctx, "on_consent_revoked", func() { c.cb.OnConsentRevoked(ctx, rec) })
	}
	span.SetStatus(codes.Ok, "")
	return nil
}

// Degraded reports whether the client is currently serving from the
// in-memory fallback instead of the primary store.
func (c *Client) Degraded() bool {
	return c.store.Degraded()
}

// Close stops the expiry janitor, waits for a running sweep, and closes the
// store. The audit publisher is not closed; its owner does that. Close is
// idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.cron != nil {
			<-c.cron.Stop().Done()
		}
		c.closeErr = c.store.Close()
		c.logger.Info("consent client closed", "driver", c.driver)
	})
	return c.closeErr
}

// loadActive returns the subject's active record. Expired and unreadable
// records are pruned under the subject lock and reported as absent.
func (c *Client) loadActive(ctx context.Context, storageSubject string) (Record, error) {
	raw, err := c.store.Get(ctx, c.recordKey(storageSubject))
	if errors.Is(err, sentinel.ErrNotFound) {
		return Record{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound,
			"no consent recorded")
	}
	if err != nil {
		return Record{}, dErrors.Wrap(err, dErrors.CodeUnavailable,
			"read consent record")
	}

	rec, err := decodeRecord(raw)
	if err != nil {
		c.repairCorrupt(ctx, storageSubject, err)
		return Record{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound,
			"no consent recorded")
	}
	if !rec.IsActive(time.Now()) {
		c.expireRecord(ctx, storageSubject, rec, "expired on read")
		return Record{}, dErrors.Wrap(sentinel.ErrNotFound, dErrors.CodeNotFound,
			"no consent recorded")
	}
	return rec, nil
}

// expireRecord deletes an expired record. The read happened outside the
// subject lock, so re-check under it: a concurrent SetConsent may have
// replaced the record since.
func (c *Client) expireRecord(ctx context.Context, storageSubject string, stale Record, reason string) {
	unlock := c.locks.lock(storageSubject)
	defer unlock()

	raw, err := c.store.Get(ctx, c.recordKey(storageSubject))
	if err != nil {
		return
	}
	current, err := decodeRecord(raw)
	if err != nil || current.ID != stale.ID {
		return
	}
	if err := c.store.Delete(ctx, c.recordKey(storageSubject)); err != nil {
		return
	}

	c.metrics.IncRecordsExpired()
	c.emitAudit(ctx, audit.Event{
		Action:    audit.ActionRecordExpired,
		SubjectID: storageSubject,
		RecordID:  stale.ID.String(),
		Purposes:  stale.GrantedPurposes(),
		Driver:    c.driver,
		Reason:    reason,
	})
}

// repairCorrupt drops a record that no longer decodes, after confirming
// under the subject lock that it was not just replaced with a good one.
func (c *Client) repairCorrupt(ctx context.Context, storageSubject string, cause error) {
	c.logger.WarnContext(ctx, "dropping unreadable consent record",
		"subject", c.spanSubject(storageSubject), "error", cause)
	c.dispatchError(ctx, cause)

	unlock := c.locks.lock(storageSubject)
	defer unlock()

	raw, err := c.store.Get(ctx, c.recordKey(storageSubject))
	if err != nil {
		return
	}
	if _, err := decodeRecord(raw); err == nil {
		return
	}
	_ = c.store.Delete(ctx, c.recordKey(storageSubject))
}

func (c *Client) auditCheck(ctx context.Context, storageSubject, recordID string, purpose domain.Purpose, granted bool) {
	decision := audit.DecisionDenied
	if granted {
		decision = audit.DecisionGranted
	}
	c.emitAudit(ctx, audit.Event{
		Action:    audit.ActionConsentChecked,
		SubjectID: storageSubject,
		RecordID:  recordID,
		Purposes:  []string{purpose.String()},
		Decision:  decision,
		Driver:    c.driver,
	})
}

// onStorageTransition turns fallback breaker transitions into audit events.
// Logging and metrics for the transition happen inside the fallback itself.
func (c *Client) onStorageTransition(degraded bool) {
	event := audit.Event{
		Action: audit.ActionStorageRecovered,
		Driver: c.driver,
		Reason: "primary storage healthy again",
	}
	if degraded {
		event.Action = audit.ActionStorageFallback
		event.Reason = "primary storage unavailable, records held in memory"
	}
	c.emitAudit(context.Background(), event)
}

func (c *Client) emitAudit(ctx context.Context, event audit.Event) {
	if c.audit == nil {
		return
	}
	event.RequestID = requestcontext.RequestID(ctx)
	if event.UserAgent == "" {
		event.UserAgent = requestcontext.Info(ctx).UserAgent
	}
	if err := c.audit.Emit(ctx, event); err != nil {
		c.logger.DebugContext(ctx, "audit emit failed",
			"action", event.Action, "error", err)
	}
}

// dispatchError hands an absorbed error to the OnError callback.
func (c *Client) dispatchError(ctx context.Context, err error) {
	if err == nil || c.cb.OnError == nil {
		return
	}
	c.safely(ctx, "on_error", func() { c.cb.OnError(ctx, err) })
}

// safely runs a callback and contains panics: the panic is logged and
// counted, never propagated into client call paths.
func (c *Client) safely(ctx context.Context, name string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.metrics.IncCallbackPanic()
			c.logger.ErrorContext(ctx, "callback panicked",
				"callback", name, "panic", r)
		}
	}()
	fn()
}

// storageSubject maps a subject ID to the identifier used in storage keys
// and audit events: the pseudonym when configured, the raw ID otherwise.
func (c *Client) storageSubject(subject domain.SubjectID) string {
	return c.pseudo.Pseudonym(subject.String())
}

// spanSubject is the subject form safe for spans and log lines. Pseudonyms
// are already non-identifying; raw IDs are reduced to a short hash.
func (c *Client) spanSubject(storageSubject string) string {
	if c.pseudo.Enabled() {
		return storageSubject
	}
	return fmt.Sprintf("%08x", hashSubject(storageSubject))
}

func (c *Client) recordKey(storageSubject string) string {
	return c.keyPrefix() + storageSubject
}

func (c *Client) keyPrefix() string {
	return c.key + ":"
}

// fail records an error on the span and passes it through.
func (c *Client) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func clonePreferences(in map[domain.Purpose]bool) map[domain.Purpose]bool {
	out := make(map[domain.Purpose]bool, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func preferencesAsStrings(in map[domain.Purpose]bool) map[string]bool {
	out := make(map[string]bool, len(in))
	for k, v := range in {
		out[k.String()] = v
	}
	return out
}
