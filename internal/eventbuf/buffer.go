// Package eventbuf accumulates analytics events in memory and flushes
// them to durable storage in batches.
package eventbuf

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// Options configures one buffer.
type Options struct {
	// Threshold is the item count that triggers a flush. Default 25.
	Threshold int
	// MaxAge is how long the oldest unflushed event may wait before a
	// flush is forced. Default 30s.
	MaxAge time.Duration
	// SweepInterval is how often the age trigger is checked. Default 1s.
	SweepInterval time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

func (o *Options) applyDefaults() {
	if o.Threshold <= 0 {
		o.Threshold = 25
	}
	if o.MaxAge <= 0 {
		o.MaxAge = 30 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Second
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Buffer holds one entity's unflushed analytics events. Append is
// non-blocking with respect to durable persistence: flushes run on a
// background goroutine, and a failed flush re-merges the batch at the
// front of the live buffer so events are never silently dropped.
type Buffer struct {
	entity    model.EntityKey
	store     store.Store
	publisher events.Publisher
	opts      Options

	mu            sync.Mutex
	pending       []model.AnalyticsEvent
	firstBuffered time.Time
	seq           uint64
	seqLoaded     bool

	// flushMu serializes flushes so batch sequence numbers stay
	// monotonic even when the count and age triggers race.
	flushMu sync.Mutex

	errs chan error
	kick chan struct{}
	stop chan struct{}
	done chan struct{}
}

// New creates a buffer for one entity and starts its flush loop.
func New(entity model.EntityKey, s store.Store, p events.Publisher, opts Options) *Buffer {
	opts.applyDefaults()
	b := &Buffer{
		entity:    entity,
		store:     s,
		publisher: p,
		opts:      opts,
		errs:      make(chan error, 16),
		kick:      make(chan struct{}, 1),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
	go b.run()
	return b
}

// Append adds an event to the buffer. It never blocks on storage; if
// the count threshold is reached the flush happens on the background
// goroutine.
func (b *Buffer) Append(ev model.AnalyticsEvent) {
	b.mu.Lock()
	if len(b.pending) == 0 {
		b.firstBuffered = b.opts.Now()
	}
	b.pending = append(b.pending, ev)
	full := len(b.pending) >= b.opts.Threshold
	b.mu.Unlock()

	metrics.EventsBuffered.Inc()
	if full {
		select {
		case b.kick <- struct{}{}:
		default:
		}
	}
}

// Len returns the number of unflushed events.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// RequestFlush schedules a background flush without blocking the
// caller. Used when an entity's tier forces flushes below the buffer's
// own count threshold.
func (b *Buffer) RequestFlush() {
	select {
	case b.kick <- struct{}{}:
	default:
	}
}

// Errors delivers flush failures. The channel is buffered; when the
// actor is not draining it, failures are logged and dropped rather
// than blocking the flush loop.
func (b *Buffer) Errors() <-chan error {
	return b.errs
}

// FlushNow synchronously flushes the buffer. Called on actor eviction
// and graceful shutdown.
func (b *Buffer) FlushNow(ctx context.Context) error {
	return b.flush(ctx, "forced")
}

// Close stops the flush loop and flushes whatever remains.
func (b *Buffer) Close(ctx context.Context) error {
	close(b.stop)
	<-b.done
	return b.flush(ctx, "forced")
}

func (b *Buffer) run() {
	defer close(b.done)

	ticker := time.NewTicker(b.opts.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stop:
			return
		case <-b.kick:
			b.flushAsync("count")
		case <-ticker.C:
			b.mu.Lock()
			aged := len(b.pending) > 0 && b.opts.Now().Sub(b.firstBuffered) >= b.opts.MaxAge
			b.mu.Unlock()
			if aged {
				b.flushAsync("age")
			}
		}
	}
}

func (b *Buffer) flushAsync(trigger string) {
	if err := b.flush(context.Background(), trigger); err != nil {
		select {
		case b.errs <- err:
		default:
			slog.Warn("event buffer flush failed and error channel full",
				"entity", b.entity, "error", err)
		}
	}
}

// flush swaps the buffer for an empty one and persists the swapped-out
// batch as a single transaction. On failure the batch is re-merged at
// the front of the live buffer, oldest first.
func (b *Buffer) flush(ctx context.Context, trigger string) error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()

	b.mu.Lock()
	if len(b.pending) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pending
	batchFirst := b.firstBuffered
	b.pending = nil
	b.mu.Unlock()

	seq, err := b.nextSeq(ctx)
	if err == nil {
		err = b.persist(ctx, seq, batch)
	}
	if err != nil {
		b.mu.Lock()
		b.pending = append(batch, b.pending...)
		b.firstBuffered = batchFirst
		b.mu.Unlock()
		metrics.EventFlushes.WithLabelValues(trigger, "error").Inc()
		return fmt.Errorf("flush %d events for %s: %w", len(batch), b.entity, err)
	}

	metrics.EventFlushes.WithLabelValues(trigger, "ok").Inc()
	if err := b.publisher.Publish(ctx, events.TopicEventsFlushed, events.EventsFlushed{
		Entity: b.entity,
		Seq:    seq,
		Count:  len(batch),
	}); err != nil {
		slog.Warn("failed to publish flush event", "entity", b.entity, "error", err)
	}
	return nil
}

func (b *Buffer) persist(ctx context.Context, seq uint64, batch []model.AnalyticsEvent) error {
	now := b.opts.Now().UTC()
	recs := make([]*store.Record, 0, len(batch))
	for i, ev := range batch {
		value, err := json.Marshal(ev)
		if err != nil {
			return model.StorageError("encode event", err)
		}
		recs = append(recs, &store.Record{
			Key:       model.EventBatchKey(b.entity, seq, i),
			Value:     value,
			UpdatedAt: now,
		})
	}
	return b.store.PutMany(ctx, recs)
}

// nextSeq returns the next batch sequence number, resuming after any
// batches already in durable storage so cross-restart ordering stays
// monotonic.
func (b *Buffer) nextSeq(ctx context.Context) (uint64, error) {
	b.mu.Lock()
	loaded := b.seqLoaded
	b.mu.Unlock()

	if !loaded {
		recs, err := b.store.ListByPrefix(ctx, model.EventBatchPrefix(b.entity))
		if err != nil {
			return 0, err
		}
		var maxSeq uint64
		for _, rec := range recs {
			if seq, ok := parseBatchSeq(rec.Key); ok && seq > maxSeq {
				maxSeq = seq
			}
		}
		b.mu.Lock()
		b.seq = maxSeq
		b.seqLoaded = true
		b.mu.Unlock()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	return b.seq, nil
}

// parseBatchSeq extracts the sequence number from an event batch key
// of the form "events:<entity>:<seq>:<idx>".
func parseBatchSeq(key string) (uint64, bool) {
	parts := strings.Split(key, ":")
	if len(parts) < 2 {
		return 0, false
	}
	seqPart := parts[len(parts)-2]
	var seq uint64
	if _, err := fmt.Sscanf(seqPart, "%d", &seq); err != nil {
		return 0, false
	}
	return seq, true
}
