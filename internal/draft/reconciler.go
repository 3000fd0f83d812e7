// Package draft reconciles per-entity draft content edited from
// multiple devices.
//
// The conflict policy is last-writer-wins on wall-clock updated_at,
// with the device ID as a deterministic tie-break. This is a known
// simplification, not a causal merge: concurrent edits lose content,
// and the loser learns about it from the StaleWriteError carrying the
// authoritative draft. Device identity is retained for audit only.
package draft

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// Reconciler owns one entity's authoritative draft. Methods are
// called under the owning actor's lock.
type Reconciler struct {
	entity    model.EntityKey
	store     store.Store
	publisher events.Publisher

	authoritative *model.Draft
	hydrated      bool
}

// New creates a reconciler for one entity.
func New(entity model.EntityKey, s store.Store, p events.Publisher) *Reconciler {
	return &Reconciler{entity: entity, store: s, publisher: p}
}

// Get returns the authoritative draft, or ErrNotFound when no draft
// exists.
func (r *Reconciler) Get(ctx context.Context) (*model.Draft, error) {
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}
	if r.authoritative == nil {
		return nil, model.ErrNotFound
	}
	return cloneDraft(r.authoritative), nil
}

// Put applies a draft write from one device. The write becomes
// authoritative when its metadata supersedes the stored draft's;
// otherwise the stored draft stands, the rejected write is published
// for audit, and the caller receives a StaleWriteError carrying the
// draft that holds authority.
func (r *Reconciler) Put(ctx context.Context, content []byte, deviceID string, updatedAt time.Time, maxBytes int) (*model.Draft, error) {
	if deviceID == "" {
		return nil, model.InputError("device_id is required")
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return nil, model.InputError(fmt.Sprintf("draft exceeds plan limit of %d bytes", maxBytes))
	}
	if err := r.hydrate(ctx); err != nil {
		return nil, err
	}

	incoming := &model.Draft{
		Content: content,
		Meta: model.DraftMetadata{
			DeviceID:    deviceID,
			UpdatedAt:   updatedAt.UTC(),
			ContentHash: model.HashContent(content),
		},
	}

	if r.authoritative != nil && !incoming.Meta.Supersedes(r.authoritative.Meta) {
		// Accepted for audit, not for authority.
		metrics.DraftWrites.WithLabelValues("superseded").Inc()
		r.publish(ctx, events.TopicDraftSuperseded, events.DraftSuperseded{
			Entity:        r.entity,
			Rejected:      incoming.Meta,
			Authoritative: r.authoritative.Meta,
		})
		return nil, &model.StaleWriteError{Authoritative: cloneDraft(r.authoritative)}
	}

	if err := r.persist(ctx, incoming); err != nil {
		return nil, err
	}
	r.authoritative = incoming

	metrics.DraftWrites.WithLabelValues("accepted").Inc()
	r.publish(ctx, events.TopicDraftAccepted, events.DraftAccepted{
		Entity: r.entity,
		Meta:   incoming.Meta,
	})
	return cloneDraft(incoming), nil
}

// Clear deletes the draft on publish or discard.
func (r *Reconciler) Clear(ctx context.Context) error {
	if err := r.store.Delete(ctx, model.DraftRecordKey(r.entity)); err != nil {
		return err
	}
	r.authoritative = nil
	r.hydrated = true
	r.publish(ctx, events.TopicDraftCleared, events.DraftCleared{Entity: r.entity})
	return nil
}

func (r *Reconciler) hydrate(ctx context.Context) error {
	if r.hydrated {
		return nil
	}
	rec, err := r.store.Get(ctx, model.DraftRecordKey(r.entity))
	if err != nil {
		return err
	}
	if rec != nil {
		var d model.Draft
		if err := json.Unmarshal(rec.Value, &d); err != nil {
			return model.StorageError("decode draft", err)
		}
		r.authoritative = &d
	}
	r.hydrated = true
	return nil
}

func (r *Reconciler) persist(ctx context.Context, d *model.Draft) error {
	value, err := json.Marshal(d)
	if err != nil {
		return model.StorageError("encode draft", err)
	}
	return r.store.Put(ctx, &store.Record{
		Key:       model.DraftRecordKey(r.entity),
		Value:     value,
		UpdatedAt: d.Meta.UpdatedAt,
	})
}

// publish is best-effort; audit events must not fail the operation.
func (r *Reconciler) publish(ctx context.Context, topic string, event any) {
	if err := r.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish draft event", "topic", topic, "entity", r.entity, "error", err)
	}
}

func cloneDraft(d *model.Draft) *model.Draft {
	if d == nil {
		return nil
	}
	cp := *d
	cp.Content = append([]byte(nil), d.Content...)
	return &cp
}
