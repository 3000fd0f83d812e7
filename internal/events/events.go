package events

import (
	"context"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// Event topic constants
const (
	TopicConfigUpdated     = "loom.config.updated"
	TopicConfigInvalidated = "loom.config.invalidated"
	TopicDraftAccepted     = "loom.draft.accepted"
	TopicDraftSuperseded   = "loom.draft.superseded"
	TopicDraftCleared      = "loom.draft.cleared"
	TopicEventsFlushed     = "loom.events.flushed"
	TopicAlarmFired        = "loom.alarm.fired"
	TopicDigestDispatched  = "loom.digest.dispatched"
	TopicDigestFailed      = "loom.digest.failed"
)

// Event types

type ConfigUpdated struct {
	Entity  model.EntityKey   `json:"entity"`
	Version int64             `json:"version"`
	Patch   map[string]string `json:"patch"`
}

type ConfigInvalidated struct {
	Entity model.EntityKey `json:"entity"`
}

type DraftAccepted struct {
	Entity model.EntityKey     `json:"entity"`
	Meta   model.DraftMetadata `json:"meta"`
}

// DraftSuperseded is the audit record for a losing draft write: the
// rejected metadata plus the metadata that holds authority.
type DraftSuperseded struct {
	Entity        model.EntityKey     `json:"entity"`
	Rejected      model.DraftMetadata `json:"rejected"`
	Authoritative model.DraftMetadata `json:"authoritative"`
}

type DraftCleared struct {
	Entity model.EntityKey `json:"entity"`
}

type EventsFlushed struct {
	Entity model.EntityKey `json:"entity"`
	Seq    uint64          `json:"seq"`
	Count  int             `json:"count"`
}

type AlarmFired struct {
	Entity model.EntityKey `json:"entity"`
	FireAt time.Time       `json:"fire_at"`
}

type DigestDispatched struct {
	Entity model.EntityKey `json:"entity"`
	Items  int             `json:"items"`
}

type DigestFailed struct {
	Entity model.EntityKey `json:"entity"`
	Reason string          `json:"reason"`
}

// Publisher is the interface for emitting events.
type Publisher interface {
	Publish(ctx context.Context, topic string, event any) error
	Close() error
}

// Subscriber is the consuming side of the event bus, used by the watch
// command to tail coordination activity.
type Subscriber interface {
	// Subscribe delivers raw event payloads on the returned channel.
	// The cancel function unsubscribes and closes the channel.
	Subscribe(topic string) (<-chan []byte, func(), error)
	Close() error
}
