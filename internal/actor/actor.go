// Package actor hosts the per-entity coordination actors. Every
// operation for an entity is serialized behind that entity's mutex;
// the actor owns the entity's config cache, draft reconciler, and
// analytics event buffer, and drives processing episodes when its
// alarm fires.
package actor

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/alarm"
	"github.com/loomworks/loom/internal/configcache"
	"github.com/loomworks/loom/internal/draft"
	"github.com/loomworks/loom/internal/eventbuf"
	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
)

// Actor coordinates all state for one entity.
type Actor struct {
	entity    model.EntityKey
	scheduler *alarm.Scheduler
	publisher events.Publisher
	pipeline  Processor
	now       func() time.Time

	mu     sync.Mutex
	cache  *configcache.Cache
	drafts *draft.Reconciler
	buffer *eventbuf.Buffer

	stateMu sync.Mutex
	state   model.ProcessingState

	done chan struct{}
}

// Processor runs one triage episode for an entity. Satisfied by
// *triage.Pipeline.
type Processor interface {
	Run(ctx context.Context, entity model.EntityKey, cfg *model.Config, limits model.TierLimits) (*model.Digest, error)
}

func newActor(entity model.EntityKey, deps Deps, scheduler *alarm.Scheduler) *Actor {
	opts := deps.BufferOpts
	opts.Now = deps.Now
	a := &Actor{
		entity:    entity,
		scheduler: scheduler,
		publisher: deps.Publisher,
		pipeline:  deps.Pipeline,
		now:       deps.Now,
		cache:     configcache.New(entity, deps.Store, deps.Tiers, deps.Now),
		drafts:    draft.New(entity, deps.Store, deps.Publisher),
		buffer:    eventbuf.New(entity, deps.Store, deps.Publisher, opts),
		state:     model.StateIdle,
		done:      make(chan struct{}),
	}
	go a.drainFlushErrors()
	return a
}

// drainFlushErrors surfaces background flush failures in the log; the
// buffer itself retains the events for the next attempt.
func (a *Actor) drainFlushErrors() {
	for {
		select {
		case err := <-a.buffer.Errors():
			slog.Warn("event flush failed", "entity", a.entity, "error", err)
		case <-a.done:
			return
		}
	}
}

// GetConfig returns the entity's effective configuration.
func (a *Actor) GetConfig(ctx context.Context) (*model.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.cache.Get(ctx)
}

// PutConfig applies a settings patch write-through. A change to the
// digest schedule re-arms the entity's alarm immediately.
func (a *Actor) PutConfig(ctx context.Context, patch map[string]string) (*model.Config, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cfg, err := a.cache.Put(ctx, patch)
	if err != nil {
		return nil, err
	}
	a.publish(ctx, events.TopicConfigUpdated, events.ConfigUpdated{
		Entity:  a.entity,
		Version: cfg.Version,
		Patch:   patch,
	})
	if _, ok := patch[model.SettingDigestTimes]; ok {
		a.armNextLocked(ctx)
	}
	return cfg, nil
}

// InvalidateConfig drops the cached config; the next read reloads from
// the durable store.
func (a *Actor) InvalidateConfig(ctx context.Context) {
	a.mu.Lock()
	a.cache.Invalidate()
	a.mu.Unlock()
	a.publish(ctx, events.TopicConfigInvalidated, events.ConfigInvalidated{Entity: a.entity})
}

// GetDraft returns the entity's current draft, or ErrNotFound.
func (a *Actor) GetDraft(ctx context.Context) (*model.Draft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drafts.Get(ctx)
}

// PutDraft reconciles a device's draft write against the entity's
// authoritative copy. Losing writes return a StaleWriteError carrying
// the authoritative draft.
func (a *Actor) PutDraft(ctx context.Context, content []byte, deviceID string, updatedAt time.Time) (*model.Draft, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	limits, err := a.cache.Limits(ctx)
	if err != nil {
		return nil, err
	}
	return a.drafts.Put(ctx, content, deviceID, updatedAt, limits.MaxDraftBytes)
}

// ClearDraft removes the entity's draft.
func (a *Actor) ClearDraft(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.drafts.Clear(ctx)
}

// AppendEvent buffers an analytics event. It never waits on durable
// persistence: flushes run in the background on the buffer's threshold
// and age triggers, and a tier limit below the buffer's threshold just
// schedules the flush earlier. Flush failures re-merge and retry; they
// are reported on the buffer's error channel, not to the appender.
func (a *Actor) AppendEvent(ctx context.Context, ev model.AnalyticsEvent) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	limits, err := a.cache.Limits(ctx)
	if err != nil {
		return err
	}
	a.buffer.Append(ev)
	if limits.MaxEventsPerFlush > 0 && a.buffer.Len() >= limits.MaxEventsPerFlush {
		a.buffer.RequestFlush()
	}
	return nil
}

// FlushEvents forces a synchronous flush of the event buffer.
func (a *Actor) FlushEvents(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer.FlushNow(ctx)
}

// State reports whether a processing episode is currently running.
func (a *Actor) State() model.ProcessingState {
	a.stateMu.Lock()
	defer a.stateMu.Unlock()
	return a.state
}

func (a *Actor) setState(s model.ProcessingState) {
	a.stateMu.Lock()
	a.state = s
	a.stateMu.Unlock()
}

// EnsureArmed arms the entity's alarm if none is pending. Called when
// an actor is first created so fresh entities get the default digest
// schedule without any configuration.
func (a *Actor) EnsureArmed(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.scheduler.Pending(a.entity); ok {
		return
	}
	a.armNextLocked(ctx)
}

// OnAlarm runs one processing episode: flush buffered events, run the
// triage pipeline, and arm the next alarm. The next alarm is armed
// even when processing fails, so one bad episode never silences an
// entity. Re-delivery of the same alarm is safe; the pipeline finds
// all items handled and composes nothing.
func (a *Actor) OnAlarm(ctx context.Context, fireAt time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.setState(model.StateProcessing)
	defer a.setState(model.StateIdle)

	metrics.AlarmsFired.Inc()
	a.publish(ctx, events.TopicAlarmFired, events.AlarmFired{Entity: a.entity, FireAt: fireAt})

	defer a.armNextLocked(ctx)

	if err := a.buffer.FlushNow(ctx); err != nil {
		slog.Warn("pre-episode event flush failed", "entity", a.entity, "error", err)
	}

	cfg, err := a.cache.Get(ctx)
	if err != nil {
		return err
	}
	limits, err := a.cache.Limits(ctx)
	if err != nil {
		return err
	}

	_, err = a.pipeline.Run(ctx, a.entity, cfg, limits)
	return err
}

// armNextLocked computes the next schedule point from the entity's
// digest_times setting (default schedule when unset or invalid) and
// arms the alarm. Callers hold a.mu.
func (a *Actor) armNextLocked(ctx context.Context) {
	points := model.DefaultSchedule
	cfg, err := a.cache.Get(ctx)
	if err != nil {
		slog.Warn("config unavailable for alarm schedule, using default",
			"entity", a.entity, "error", err)
	} else if raw := cfg.Settings[model.SettingDigestTimes]; raw != "" {
		parsed, perr := model.ParseSchedule(raw)
		if perr != nil {
			slog.Warn("invalid digest_times setting, using default schedule",
				"entity", a.entity, "error", perr)
		} else if len(parsed) > 0 {
			points = parsed
		}
	}
	a.scheduler.Arm(a.entity, alarm.ComputeNext(points, a.now()))
}

// close flushes buffered events and stops the actor's goroutines. The
// entity's alarm stays armed; a later fire re-creates the actor.
func (a *Actor) close(ctx context.Context) error {
	close(a.done)
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.buffer.Close(ctx)
}

func (a *Actor) publish(ctx context.Context, topic string, event any) {
	if err := a.publisher.Publish(ctx, topic, event); err != nil {
		slog.Warn("failed to publish actor event", "topic", topic, "error", err)
	}
}
