package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ConfigCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_config_cache_hits_total",
		Help: "Config reads served from the in-memory cache.",
	})

	ConfigCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_config_cache_misses_total",
		Help: "Config reads that required a durable-store load.",
	})

	DraftWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_draft_writes_total",
		Help: "Draft writes, labelled by outcome (accepted, superseded).",
	}, []string{"outcome"})

	EventsBuffered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_events_buffered_total",
		Help: "Analytics events appended to in-memory buffers.",
	})

	EventFlushes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_event_flushes_total",
		Help: "Event buffer flushes, labelled by trigger (count, age, forced) and status.",
	}, []string{"trigger", "status"})

	AlarmsFired = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_alarms_fired_total",
		Help: "Alarm wake-ups delivered to actors.",
	})

	ItemsClassified = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_items_classified_total",
		Help: "Triage items categorized, labelled by category.",
	}, []string{"category"})

	ClassificationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "loom_classification_failures_total",
		Help: "Triage items skipped because the classifier failed.",
	})

	DigestsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_digests_dispatched_total",
		Help: "Digest dispatch attempts, labelled by status.",
	}, []string{"status"})

	NonceValidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "loom_nonce_validations_total",
		Help: "Nonce validation attempts, labelled by result (valid, invalid).",
	}, []string{"result"})

	ActiveActors = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "loom_active_actors",
		Help: "Actor instances currently resident in the registry.",
	})
)
