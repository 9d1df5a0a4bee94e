package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"assent/pkg/platform/circuit"
	"assent/pkg/platform/metrics"
	"assent/pkg/platform/sentinel"
)

// Fallback shields the client from storage outages. Every operation is
// attempted on the primary store; availability failures are absorbed into an
// in-memory shadow so consent decisions keep working while the backend is
// down.
//
// The circuit breaker decides which result to trust. While degraded, reads
// serve the shadow for consistency; the shadow mirrors every write and every
// observed read, so decisions made during an outage stay visible. A key the
// primary holds but this process never touched is invisible until recovery.
//
// Not-found is a result, not a failure: sentinel.ErrNotFound passes through
// and counts as a healthy response.
type Fallback struct {
	primary Store
	shadow  *Memory
	breaker *circuit.Breaker

	logger      *slog.Logger
	metrics     *metrics.Metrics
	warnLimiter *rate.Limiter

	onError      func(error)
	onTransition func(degraded bool)
}

// FallbackOption configures a Fallback.
type FallbackOption func(*Fallback)

// WithName identifies the primary store in logs and breaker state.
func WithName(name string) FallbackOption {
	return func(f *Fallback) {
		if name != "" {
			f.breaker = circuit.New(name,
				circuit.WithFailureThreshold(fallbackFailureThreshold),
				circuit.WithSuccessThreshold(fallbackSuccessThreshold),
			)
		}
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) FallbackOption {
	return func(f *Fallback) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// WithMetrics attaches Prometheus metrics.
func WithMetrics(m *metrics.Metrics) FallbackOption {
	return func(f *Fallback) {
		f.metrics = m
	}
}

// WithOnError installs a hook invoked for every absorbed primary failure.
func WithOnError(fn func(error)) FallbackOption {
	return func(f *Fallback) {
		f.onError = fn
	}
}

// WithOnTransition installs a hook invoked when the fallback engages
// (degraded=true) or the primary recovers (degraded=false).
func WithOnTransition(fn func(degraded bool)) FallbackOption {
	return func(f *Fallback) {
		f.onTransition = fn
	}
}

const (
	fallbackFailureThreshold = 3
	fallbackSuccessThreshold = 2
)

// NewFallback wraps a primary store with outage protection.
func NewFallback(primary Store, opts ...FallbackOption) *Fallback {
	f := &Fallback{
		primary: primary,
		shadow:  NewMemory(),
		breaker: circuit.New("primary",
			circuit.WithFailureThreshold(fallbackFailureThreshold),
			circuit.WithSuccessThreshold(fallbackSuccessThreshold),
		),
		logger: slog.Default(),
		// Failure logs are throttled so a dead backend does not flood the log.
		warnLimiter: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Degraded reports whether the shadow is currently serving.
func (f *Fallback) Degraded() bool {
	return f.breaker.IsOpen()
}

func (f *Fallback) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	v, err := f.primary.Get(ctx, key)
	f.metrics.ObserveStorageOp("get", time.Since(start))

	if isAvailabilityError(err) {
		f.recordFailure(ctx, "get", err)
		return f.shadow.Get(ctx, key)
	}

	usePrimary := f.recordSuccess()
	if !usePrimary {
		return f.shadow.Get(ctx, key)
	}
	if err != nil {
		// Healthy primary says the key is gone; drop any stale shadow copy.
		_ = f.shadow.Delete(ctx, key)
		return nil, err
	}
	_ = f.shadow.Set(ctx, key, v)
	return v, nil
}

func (f *Fallback) Set(ctx context.Context, key string, value []byte) error {
	// The shadow is written first so state survives a primary failure.
	_ = f.shadow.Set(ctx, key, value)

	start := time.Now()
	err := f.primary.Set(ctx, key, value)
	f.metrics.ObserveStorageOp("set", time.Since(start))

	if isAvailabilityError(err) {
		f.recordFailure(ctx, "set", err)
		return nil
	}
	f.recordSuccess()
	return nil
}

func (f *Fallback) Delete(ctx context.Context, key string) error {
	_ = f.shadow.Delete(ctx, key)

	start := time.Now()
	err := f.primary.Delete(ctx, key)
	f.metrics.ObserveStorageOp("delete", time.Since(start))

	if isAvailabilityError(err) {
		f.recordFailure(ctx, "delete", err)
		return nil
	}
	f.recordSuccess()
	return nil
}

func (f *Fallback) Has(ctx context.Context, key string) (bool, error) {
	start := time.Now()
	ok, err := f.primary.Has(ctx, key)
	f.metrics.ObserveStorageOp("has", time.Since(start))

	if isAvailabilityError(err) {
		f.recordFailure(ctx, "has", err)
		return f.shadow.Has(ctx, key)
	}

	if usePrimary := f.recordSuccess(); !usePrimary {
		return f.shadow.Has(ctx, key)
	}
	return ok, err
}

func (f *Fallback) Keys(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	keys, err := f.primary.Keys(ctx, prefix)
	f.metrics.ObserveStorageOp("keys", time.Since(start))

	if isAvailabilityError(err) {
		f.recordFailure(ctx, "keys", err)
		return f.shadow.Keys(ctx, prefix)
	}

	if usePrimary := f.recordSuccess(); !usePrimary {
		return f.shadow.Keys(ctx, prefix)
	}
	return keys, err
}

// Close closes the primary store. The shadow needs no teardown.
func (f *Fallback) Close() error {
	return f.primary.Close()
}

func (f *Fallback) recordFailure(ctx context.Context, op string, err error) {
	f.metrics.IncStorageError(op)
	if f.warnLimiter.Allow() {
		f.logger.WarnContext(ctx, "storage operation failed, serving fallback",
			"op", op,
			"store", f.breaker.Name(),
			"error", err,
		)
	}
	if f.onError != nil {
		f.onError(err)
	}

	_, change := f.breaker.RecordFailure()
	if change.Opened {
		f.logger.WarnContext(ctx, "storage degraded, consent state served from memory",
			"store", f.breaker.Name(),
		)
		f.metrics.IncStorageFallback()
		f.metrics.SetFallbackState(true)
		if f.onTransition != nil {
			f.onTransition(true)
		}
	}
}

func (f *Fallback) recordSuccess() (usePrimary bool) {
	usePrimary, change := f.breaker.RecordSuccess()
	if change.Closed {
		f.logger.Info("storage recovered, consent state served from primary",
			"store", f.breaker.Name(),
		)
		f.metrics.IncStorageRecovery()
		f.metrics.SetFallbackState(false)
		if f.onTransition != nil {
			f.onTransition(false)
		}
	}
	return usePrimary
}

// isAvailabilityError separates backend failures from the not-found result.
func isAvailabilityError(err error) bool {
	return err != nil && !errors.Is(err, sentinel.ErrNotFound)
}
