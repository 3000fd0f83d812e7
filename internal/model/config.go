package model

import (
	"time"
)

// Config is the per-entity configuration record. Settings are flat
// string pairs; Version increments on every persisted write and is
// used to detect staleness between the cache and the durable store.
type Config struct {
	Settings  map[string]string `json:"settings"`
	Version   int64             `json:"version"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SettingPlan names the tier a tenant is on (e.g. "oak", "elm").
const SettingPlan = "plan"

// SettingDigestTimes holds the comma-separated times of day at which
// the triage digest fires (e.g. "08:00,13:00,18:00").
const SettingDigestTimes = "digest_times"

// Clone returns a deep copy so cached configs never leak a mutable map
// to callers.
func (c *Config) Clone() *Config {
	if c == nil {
		return nil
	}
	out := &Config{
		Settings:  make(map[string]string, len(c.Settings)),
		Version:   c.Version,
		UpdatedAt: c.UpdatedAt,
	}
	for k, v := range c.Settings {
		out.Settings[k] = v
	}
	return out
}

// ApplyPatch merges patch into a copy of the config: empty values
// delete the setting, anything else overwrites. The version bump and
// timestamp are the caller's responsibility (done after persistence).
func (c *Config) ApplyPatch(patch map[string]string) *Config {
	out := c.Clone()
	if out == nil {
		out = &Config{Settings: make(map[string]string, len(patch))}
	}
	for k, v := range patch {
		if v == "" {
			delete(out.Settings, k)
			continue
		}
		out.Settings[k] = v
	}
	return out
}

// Plan returns the configured plan name, or empty when unset.
func (c *Config) Plan() string {
	if c == nil {
		return ""
	}
	return c.Settings[SettingPlan]
}

// TierLimits are the numeric and boolean limits attached to a plan.
// A TierLimits value is immutable per config version; it is recomputed
// whenever the config changes.
type TierLimits struct {
	MaxDraftBytes     int  `json:"max_draft_bytes" toml:"max_draft_bytes"`
	MaxEventsPerFlush int  `json:"max_events_per_flush" toml:"max_events_per_flush"`
	DigestBatchSize   int  `json:"digest_batch_size" toml:"digest_batch_size"`
	MaxRulesPerEntity int  `json:"max_rules_per_entity" toml:"max_rules_per_entity"`
	CustomDomains     bool `json:"custom_domains" toml:"custom_domains"`
}

// TierCatalog maps plan names to their limits.
type TierCatalog map[string]TierLimits

// DefaultTierCatalog is used when no catalog file is configured.
// "oak" is the free tier and the fallback for unknown plans.
func DefaultTierCatalog() TierCatalog {
	return TierCatalog{
		"oak": {
			MaxDraftBytes:     256 * 1024,
			MaxEventsPerFlush: 50,
			DigestBatchSize:   10,
			MaxRulesPerEntity: 5,
		},
		"elm": {
			MaxDraftBytes:     1024 * 1024,
			MaxEventsPerFlush: 200,
			DigestBatchSize:   10,
			MaxRulesPerEntity: 25,
			CustomDomains:     true,
		},
		"sequoia": {
			MaxDraftBytes:     8 * 1024 * 1024,
			MaxEventsPerFlush: 1000,
			DigestBatchSize:   10,
			MaxRulesPerEntity: 100,
			CustomDomains:     true,
		},
	}
}

// LimitsFor resolves the limits for a plan, falling back to "oak" for
// unknown or empty plan names.
func (t TierCatalog) LimitsFor(plan string) TierLimits {
	if limits, ok := t[plan]; ok {
		return limits
	}
	return t["oak"]
}
