// Package configcache materializes per-entity configuration in memory.
//
// The cache is read-through and write-through: reads load from the
// durable store only on a miss, and writes mutate the cache only after
// the store accepted them, so readers never observe a config that
// failed to persist. There is no TTL; correctness depends on the actor
// being the sole writer path. Invalidate exists for the one exception,
// administrative mutation outside the actor.
package configcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/loomworks/loom/internal/metrics"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/store"
)

// Cache holds one entity's materialized config and tier limits.
// All methods are called under the owning actor's lock, so the struct
// needs no locking of its own.
type Cache struct {
	entity model.EntityKey
	store  store.Store
	tiers  model.TierCatalog
	now    func() time.Time

	cached *model.Config
	limits model.TierLimits
	valid  bool
}

// New creates a cache for one entity.
func New(entity model.EntityKey, s store.Store, tiers model.TierCatalog, now func() time.Time) *Cache {
	if now == nil {
		now = time.Now
	}
	return &Cache{entity: entity, store: s, tiers: tiers, now: now}
}

// Get returns the entity's config, loading it from the durable store
// on a miss. An entity with no stored config gets an empty one; it is
// not persisted until the first write.
func (c *Cache) Get(ctx context.Context) (*model.Config, error) {
	if c.valid {
		metrics.ConfigCacheHits.Inc()
		return c.cached.Clone(), nil
	}
	metrics.ConfigCacheMisses.Inc()

	rec, err := c.store.Get(ctx, model.ConfigRecordKey(c.entity))
	if err != nil {
		// Cache stays untouched on failure.
		return nil, err
	}

	cfg := &model.Config{Settings: map[string]string{}}
	if rec != nil {
		if err := json.Unmarshal(rec.Value, cfg); err != nil {
			return nil, model.StorageError("decode config", err)
		}
	}

	c.populate(cfg)
	return cfg.Clone(), nil
}

// Put merges patch into the current config, persists the result, and
// only then updates the cache. On persistence failure the cache keeps
// its previous contents and the error is surfaced.
func (c *Cache) Put(ctx context.Context, patch map[string]string) (*model.Config, error) {
	current, err := c.Get(ctx)
	if err != nil {
		return nil, err
	}

	next := current.ApplyPatch(patch)
	next.Version = current.Version + 1
	next.UpdatedAt = c.now().UTC()

	value, err := json.Marshal(next)
	if err != nil {
		return nil, model.StorageError("encode config", err)
	}
	rec := &store.Record{
		Key:       model.ConfigRecordKey(c.entity),
		Value:     value,
		UpdatedAt: next.UpdatedAt,
	}
	if err := c.store.Put(ctx, rec); err != nil {
		return nil, err
	}

	c.populate(next)
	return next.Clone(), nil
}

// Invalidate forces the next Get to reload from the durable store.
func (c *Cache) Invalidate() {
	c.cached = nil
	c.valid = false
	c.limits = model.TierLimits{}
}

// Limits returns the tier limits for the currently cached config,
// loading the config first if needed.
func (c *Cache) Limits(ctx context.Context) (model.TierLimits, error) {
	if !c.valid {
		if _, err := c.Get(ctx); err != nil {
			return model.TierLimits{}, err
		}
	}
	return c.limits, nil
}

// populate installs cfg as the cached value and recomputes the tier
// limits, which are immutable per config version.
func (c *Cache) populate(cfg *model.Config) {
	c.cached = cfg.Clone()
	c.limits = c.tiers.LimitsFor(cfg.Plan())
	c.valid = true
}
