// Package client provides a transport-agnostic interface for the loom
// service and an HTTP/JSON implementation that talks to the loom REST
// API.
package client

import (
	"context"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// LoomClient is the interface that all loom CLI commands use to
// communicate with the server. It is implemented by HTTPClient.
type LoomClient interface {
	// Config
	GetConfig(ctx context.Context, entity string) (*model.Config, error)
	PatchConfig(ctx context.Context, entity string, settings map[string]string) (*model.Config, error)
	InvalidateConfig(ctx context.Context, entity string) error

	// Draft
	GetDraft(ctx context.Context, entity string) (*model.Draft, error)
	PutDraft(ctx context.Context, entity string, content []byte, deviceID string, updatedAt time.Time) (*model.Draft, error)
	DeleteDraft(ctx context.Context, entity string) error

	// Analytics events
	AppendEvents(ctx context.Context, entity string, events []model.AnalyticsEvent) error
	FlushEvents(ctx context.Context, entity string) error

	// Triage
	IngestItem(ctx context.Context, entity string, item *IngestItemRequest) (*model.TriageItem, error)
	FireAlarm(ctx context.Context, entity string) error

	// Entity lifecycle
	EntityStatus(ctx context.Context, entity string) (*EntityStatus, error)
	EvictEntity(ctx context.Context, entity string) error

	// Auth challenges
	Challenge(ctx context.Context, agentID string) (*ChallengeResponse, error)
	Validate(ctx context.Context, agentID, nonce string) (bool, error)

	// Health
	Health(ctx context.Context) (string, error)

	// Lifecycle
	Close() error
}

// IngestItemRequest holds parameters for ingesting a triage item.
type IngestItemRequest struct {
	ID         string    `json:"id,omitempty"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// EntityStatus is the response from EntityStatus.
type EntityStatus struct {
	Entity    model.EntityKey       `json:"entity"`
	State     model.ProcessingState `json:"state"`
	NextAlarm time.Time             `json:"next_alarm,omitzero"`
}

// ChallengeResponse is the response from Challenge.
type ChallengeResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresIn int    `json:"expires_in_seconds"`
}
