package actor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/loomworks/loom/internal/alarm"
	"github.com/loomworks/loom/internal/eventbuf"
	"github.com/loomworks/loom/internal/events"
	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// Deps holds the shared collaborators every actor is built from.
type Deps struct {
	Store      store.Store
	Publisher  events.Publisher
	Pipeline   Processor
	Tiers      model.TierCatalog
	BufferOpts eventbuf.Options
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Registry creates actors on first use and routes alarm fires to
// them. One registry serves the whole process.
type Registry struct {
	deps      Deps
	scheduler *alarm.Scheduler

	mu     sync.Mutex
	actors map[model.EntityKey]*Actor
}

// NewRegistry builds a registry and its alarm scheduler.
func NewRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Publisher == nil {
		deps.Publisher = &events.NoopPublisher{}
	}
	if deps.Tiers == nil {
		deps.Tiers = model.DefaultTierCatalog()
	}
	r := &Registry{
		deps:   deps,
		actors: make(map[model.EntityKey]*Actor),
	}
	r.scheduler = alarm.NewScheduler(r.onAlarm, deps.Now)
	return r
}

// Get returns the entity's actor, creating and arming it on first
// access.
func (r *Registry) Get(ctx context.Context, entity model.EntityKey) *Actor {
	r.mu.Lock()
	a, ok := r.actors[entity]
	if !ok {
		a = newActor(entity, r.deps, r.scheduler)
		r.actors[entity] = a
		metrics.ActiveActors.Inc()
	}
	r.mu.Unlock()

	if !ok {
		a.EnsureArmed(ctx)
	}
	return a
}

// Evict flushes and removes an entity's actor. The alarm stays armed;
// firing it later re-creates the actor from durable state.
func (r *Registry) Evict(ctx context.Context, entity model.EntityKey) error {
	r.mu.Lock()
	a, ok := r.actors[entity]
	if ok {
		delete(r.actors, entity)
		metrics.ActiveActors.Dec()
	}
	r.mu.Unlock()

	if !ok {
		return nil
	}
	return a.close(ctx)
}

// Scheduler exposes the alarm scheduler for status queries.
func (r *Registry) Scheduler() *alarm.Scheduler {
	return r.scheduler
}

// Len reports how many actors are resident.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.actors)
}

// Shutdown stops the scheduler and closes every actor, flushing their
// buffers.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.scheduler.Stop()

	r.mu.Lock()
	actors := make([]*Actor, 0, len(r.actors))
	for entity, a := range r.actors {
		actors = append(actors, a)
		delete(r.actors, entity)
		metrics.ActiveActors.Dec()
	}
	r.mu.Unlock()

	var errs []error
	for _, a := range actors {
		if err := a.close(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// onAlarm is the scheduler's fire callback. It re-creates the actor
// when needed so eviction never loses a scheduled episode.
func (r *Registry) onAlarm(entity model.EntityKey, fireAt time.Time) {
	ctx := context.Background()
	if err := r.Get(ctx, entity).OnAlarm(ctx, fireAt); err != nil {
		slog.Error("alarm processing failed", "entity", entity, "error", err)
	}
}
