package model

import (
	"encoding/json"
	"time"
)

// AnalyticsEvent is an immutable append-only telemetry record.
// Ordering within a buffer is insertion order; ordering across
// flushes is by the buffer's monotonic flush sequence number.
type AnalyticsEvent struct {
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// EventBatch is the durable form of one flushed buffer.
type EventBatch struct {
	Entity  EntityKey        `json:"entity"`
	Seq     uint64           `json:"seq"`
	Events  []AnalyticsEvent `json:"events"`
	Flushed time.Time        `json:"flushed"`
}
