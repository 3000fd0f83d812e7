// Package triage drives the email-triage processing pipeline: on each
// alarm, classify a bounded batch of unread items, compose a digest,
// and dispatch it through the external mail collaborator.
package triage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// DefaultBatchLimit bounds how many items one episode may process,
// keeping classifier load and episode duration predictable.
const DefaultBatchLimit = 10

// CategoryUnsorted is assigned when neither a rule nor the classifier
// produced a category.
const CategoryUnsorted = "unsorted"

// Classifier is the external classification collaborator. It may fail
// or time out; the pipeline treats either as a per-item failure.
type Classifier interface {
	Classify(ctx context.Context, item model.TriageItem) (category string, confidence float64, err error)
}

// Mailer is the external mail-dispatch collaborator.
type Mailer interface {
	Send(ctx context.Context, entity model.EntityKey, subject, body string) error
}

// Pipeline runs triage episodes for any entity. It is stateless
// between runs; all per-entity state lives in the durable store, which
// is what makes alarm re-delivery safe.
type Pipeline struct {
	store      store.Store
	classifier Classifier
	mailer     Mailer
	publisher  events.Publisher
	now        func() time.Time
}

// New creates a pipeline. now may be nil for the wall clock.
func New(s store.Store, c Classifier, m Mailer, p events.Publisher, now func() time.Time) *Pipeline {
	if now == nil {
		now = time.Now
	}
	return &Pipeline{store: s, classifier: c, mailer: m, publisher: p, now: now}
}

// Run executes one processing episode. Items are marked handled in
// the same transaction that records the episode, before dispatch, so
// a re-fired alarm after a crash never re-sends a digest for the same
// items. A dispatch failure is returned as a DispatchError after the
// episode record is updated; the caller still arms the next alarm.
func (p *Pipeline) Run(ctx context.Context, entity model.EntityKey, cfg *model.Config, limits model.TierLimits) (*model.Digest, error) {
	batchLimit := DefaultBatchLimit
	if limits.DigestBatchSize > 0 && limits.DigestBatchSize < batchLimit {
		batchLimit = limits.DigestBatchSize
	}

	started := p.now().UTC()

	items, err := p.loadUnhandled(ctx, entity, batchLimit)
	if err != nil {
		return nil, err
	}

	rules := RulesFromConfig(cfg, limits.MaxRulesPerEntity)

	digest := &model.Digest{
		Entity: entity,
		Counts: make(map[string]int),
	}
	var processed []model.TriageItem

	for _, item := range items {
		category, skip, err := p.categorize(ctx, rules, item)
		if err != nil {
			// Recorded and skipped; not retried within this episode, but
			// the item stays unhandled so a later episode picks it up.
			metrics.ClassificationFailures.Inc()
			slog.Warn("classification failed",
				"entity", entity, "item", item.ID, "error", err)
			digest.Failed++
			continue
		}
		if skip {
			digest.Skipped++
			item.Category = category
			item.Handled = true
			processed = append(processed, item)
			continue
		}

		metrics.ItemsClassified.WithLabelValues(category).Inc()
		item.Category = category
		item.Handled = true
		processed = append(processed, item)

		digest.Counts[category]++
		digest.Lines = append(digest.Lines, model.DigestLine{
			ItemID:   item.ID,
			Sender:   item.Sender,
			Subject:  item.Subject,
			Category: category,
		})
	}

	digest.ComposedAt = p.now().UTC()

	if len(processed) == 0 && digest.Failed == 0 {
		// Nothing to do: no writes, no dispatch. Alarm re-delivery
		// against fully-handled state lands here.
		return digest, nil
	}

	episode, err := p.commit(ctx, entity, digest, processed, started)
	if err != nil {
		return nil, err
	}

	if digest.Empty() {
		return digest, nil
	}

	subject, body := Render(digest)
	if err := p.mailer.Send(ctx, entity, subject, body); err != nil {
		metrics.DigestsDispatched.WithLabelValues("error").Inc()
		episode.Status = model.EpisodeDispatchFailed
		if uerr := p.putEpisode(ctx, entity, episode); uerr != nil {
			slog.Warn("failed to record dispatch failure",
				"entity", entity, "error", uerr)
		}
		p.publish(ctx, events.TopicDigestFailed, events.DigestFailed{
			Entity: entity,
			Reason: err.Error(),
		})
		return digest, &model.DispatchError{Entity: entity, Err: err}
	}

	metrics.DigestsDispatched.WithLabelValues("ok").Inc()
	p.publish(ctx, events.TopicDigestDispatched, events.DigestDispatched{
		Entity: entity,
		Items:  len(digest.Lines),
	})
	return digest, nil
}

// loadUnhandled returns up to limit items not yet marked handled, in
// key order.
func (p *Pipeline) loadUnhandled(ctx context.Context, entity model.EntityKey, limit int) ([]model.TriageItem, error) {
	recs, err := p.store.ListByPrefix(ctx, model.TriageItemPrefix(entity))
	if err != nil {
		return nil, err
	}

	var items []model.TriageItem
	for _, rec := range recs {
		var item model.TriageItem
		if err := json.Unmarshal(rec.Value, &item); err != nil {
			return nil, model.StorageError("decode triage item", err)
		}
		if item.Handled {
			continue
		}
		items = append(items, item)
		if len(items) == limit {
			break
		}
	}
	return items, nil
}

// categorize resolves an item's category: entity rules first, then the
// external classifier. skip means the item is handled without
// appearing in the digest.
func (p *Pipeline) categorize(ctx context.Context, rules []model.FilterRule, item model.TriageItem) (category string, skip bool, err error) {
	for _, rule := range rules {
		if ruleMatches(rule, item) {
			if rule.Skip {
				return rule.Category, true, nil
			}
			if rule.Category != "" {
				return rule.Category, false, nil
			}
		}
	}

	category, _, err = p.classifier.Classify(ctx, item)
	if err != nil {
		return "", false, &model.ClassificationError{ItemID: item.ID, Err: err}
	}
	if category == "" {
		category = CategoryUnsorted
	}
	return category, false, nil
}

// commit marks processed items handled and records the episode in a
// single transaction.
func (p *Pipeline) commit(ctx context.Context, entity model.EntityKey, digest *model.Digest, processed []model.TriageItem, started time.Time) (*model.Episode, error) {
	now := p.now().UTC()

	seq, err := p.nextEpisodeSeq(ctx, entity)
	if err != nil {
		return nil, err
	}

	status := model.EpisodeSucceeded
	if digest.Empty() {
		status = model.EpisodeEmpty
	}
	episode := &model.Episode{
		Entity:     entity,
		Seq:        seq,
		Status:     status,
		Processed:  len(processed),
		Failed:     digest.Failed,
		StartedAt:  started,
		FinishedAt: now,
	}

	recs := make([]*store.Record, 0, len(processed)+1)
	for _, item := range processed {
		item.HandledAt = now
		value, err := json.Marshal(item)
		if err != nil {
			return nil, model.StorageError("encode triage item", err)
		}
		recs = append(recs, &store.Record{
			Key:       model.TriageItemKey(entity, item.ID),
			Value:     value,
			UpdatedAt: now,
		})
	}

	episodeValue, err := json.Marshal(episode)
	if err != nil {
		return nil, model.StorageError("encode episode", err)
	}
	recs = append(recs, &store.Record{
		Key:       model.EpisodeRecordKey(entity, seq),
		Value:     episodeValue,
		UpdatedAt: now,
	})

	if err := p.store.PutMany(ctx, recs); err != nil {
		return nil, err
	}
	return episode, nil
}

func (p *Pipeline) putEpisode(ctx context.Context, entity model.EntityKey, episode *model.Episode) error {
	value, err := json.Marshal(episode)
	if err != nil {
		return model.StorageError("encode episode", err)
	}
	return p.store.Put(ctx, &store.Record{
		Key:       model.EpisodeRecordKey(entity, episode.Seq),
		Value:     value,
		UpdatedAt: p.now().UTC(),
	})
}

func (p *Pipeline) nextEpisodeSeq(ctx context.Context, entity model.EntityKey) (uint64, error) {
	recs, err := p.store.ListByPrefix(ctx, model.EpisodePrefix(entity))
	if err != nil {
		return 0, err
	}
	var maxSeq uint64
	for _, rec := range recs {
		var ep model.Episode
		if err := json.Unmarshal(rec.Value, &ep); err != nil {
			continue
		}
		if ep.Seq > maxSeq {
			maxSeq = ep.Seq
		}
	}
	return maxSeq + 1, nil
}

func (p *Pipeline) publish(ctx context.Context, topic string, event any) {
	if err := p.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish pipeline event", "topic", topic, "error", err)
	}
}

// SaveItem stores a new inbox item for later triage. Used by the
// ingestion surface and tests.
func SaveItem(ctx context.Context, s store.Store, entity model.EntityKey, item model.TriageItem) error {
	if item.ID == "" {
		return model.InputError("item id is required")
	}
	value, err := json.Marshal(item)
	if err != nil {
		return model.StorageError("encode triage item", err)
	}
	return s.Put(ctx, &store.Record{
		Key:       model.TriageItemKey(entity, item.ID),
		Value:     value,
		UpdatedAt: item.ReceivedAt,
	})
}

// Render produces the digest mail subject and plain-text body.
func Render(d *model.Digest) (subject, body string) {
	subject = fmt.Sprintf("Inbox digest: %d new message(s)", len(d.Lines))

	categories := make([]string, 0, len(d.Counts))
	for category := range d.Counts {
		categories = append(categories, category)
	}
	sort.Strings(categories)

	var b strings.Builder
	for _, category := range categories {
		fmt.Fprintf(&b, "%s: %d\n", category, d.Counts[category])
	}
	b.WriteString("\n")
	for _, line := range d.Lines {
		fmt.Fprintf(&b, "[%s] %s <%s>: %s\n", line.Category, line.Sender, line.ItemID, line.Subject)
	}
	return subject, b.String()
}
