// Package publisher emits audit events to a backing store.
//
// Two modes:
//   - Synchronous (default): Emit blocks until the store write completes
//     and returns its error. Use when audit loss is unacceptable.
//   - Asynchronous (WithAsyncBuffer): Emit enqueues and returns
//     immediately. A background worker drains the queue; when the queue is
//     full the event is dropped and counted. Use on hot paths where audit
//     must never stall the operation.
package publisher

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	audit "assent/pkg/platform/audit"
	"assent/pkg/platform/metrics"
	"assent/pkg/platform/sentinel"
)

// ErrBufferFull is returned by async Emit when the queue is full. The
// event has been dropped; callers on hot paths may ignore it.
var ErrBufferFull = errors.New("audit buffer full")

const appendTimeout = 5 * time.Second

type Publisher struct {
	store     audit.Store
	ownsStore bool
	logger    *slog.Logger
	metrics   *metrics.Metrics
	sampler   *Sampler

	inbox chan audit.Event // nil in synchronous mode

	mu     sync.RWMutex
	closed bool

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher to asynchronous mode with the
// given queue size.
func WithAsyncBuffer(size int) Option {
	return func(p *Publisher) {
		if size > 0 {
			p.inbox = make(chan audit.Event, size)
		}
	}
}

// WithLogger sets a logger for drop and failure reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

// WithSampler enables sampling of operations-category events. Compliance
// events are never sampled.
func WithSampler(s *Sampler) Option {
	return func(p *Publisher) {
		p.sampler = s
	}
}

// WithOwnedStore transfers the backing store's lifecycle to the publisher;
// Close tears it down after the queue drains. Use when the store was opened
// solely for this publisher.
func WithOwnedStore() Option {
	return func(p *Publisher) {
		p.ownsStore = true
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.inbox != nil {
		p.wg.Add(1)
		go p.run()
	}
	return p
}

// Emit records an audit event. The timestamp defaults to now and the
// category is always derived from the action.
//
// In async mode a full queue drops the event and returns ErrBufferFull.
func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Action == "" {
		return errors.New("audit event requires an action")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	event.Category = event.Action.Category()

	if p.sampler != nil && event.Category == audit.CategoryOperations &&
		!p.sampler.ShouldSample(string(event.Action)) {
		return nil
	}

	if p.inbox == nil {
		return p.store.Append(ctx, event)
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return sentinel.ErrClosed
	}

	select {
	case p.inbox <- event:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		p.metrics.IncAuditDropped()
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit event dropped", "action", event.Action, "reason", "buffer full")
		}
		return ErrBufferFull
	}
}

// List returns stored events for one subject, most recent first.
func (p *Publisher) List(ctx context.Context, subjectID string) ([]audit.Event, error) {
	return p.store.ListBySubject(ctx, subjectID)
}

// Recent returns the most recent stored events across subjects.
func (p *Publisher) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	return p.store.ListRecent(ctx, limit)
}

// Close drains the async queue and stops the worker. Emit returns
// sentinel.ErrClosed afterwards. The backing store stays with the caller
// unless WithOwnedStore transferred it here.
func (p *Publisher) Close() error {
	var err error
	p.closeOnce.Do(func() {
		if p.inbox != nil {
			p.mu.Lock()
			p.closed = true
			close(p.inbox)
			p.mu.Unlock()
			p.wg.Wait()
		}
		if p.ownsStore {
			err = p.store.Close()
		}
	})
	return err
}

func (p *Publisher) run() {
	defer p.wg.Done()
	for event := range p.inbox {
		p.append(event)
	}
}

func (p *Publisher) append(event audit.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), appendTimeout)
	defer cancel()
	if err := p.store.Append(ctx, event); err != nil {
		p.metrics.IncAuditDropped()
		if p.logger != nil {
			p.logger.Warn("audit append failed", "action", event.Action, "error", err)
		}
	}
}
