package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/loomworks/loom/internal/store"
)

// header is the first JSONL record written by ExportJSONL.
type header struct {
	Version      string    `json:"version"`
	Type         string    `json:"type"`
	Timestamp    time.Time `json:"timestamp"`
	EventCount   int       `json:"event_count"`
	EpisodeCount int       `json:"episode_count"`
}

// record wraps a single JSONL line with a type discriminator. The
// storage key carries the entity, batch sequence, and index, so the
// archive is self-describing without decoding the value.
type record struct {
	Type      string          `json:"type"`
	Key       string          `json:"key"`
	UpdatedAt time.Time       `json:"updated_at"`
	Data      json.RawMessage `json:"data"`
}

// Stats reports what an export contained.
type Stats struct {
	Events   int
	Episodes int
}

// ExportJSONL writes all flushed analytics events and all processing
// episode records, across every entity, as JSONL to w. Prefix scans
// return records in key order, so the export is deterministic for a
// given store state.
func ExportJSONL(ctx context.Context, s store.Store, w io.Writer) (Stats, error) {
	events, err := s.ListByPrefix(ctx, "events:")
	if err != nil {
		return Stats{}, fmt.Errorf("list events: %w", err)
	}
	episodes, err := s.ListByPrefix(ctx, "episode:")
	if err != nil {
		return Stats{}, fmt.Errorf("list episodes: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)

	if err := enc.Encode(header{
		Version:      "1",
		Type:         "header",
		Timestamp:    time.Now().UTC(),
		EventCount:   len(events),
		EpisodeCount: len(episodes),
	}); err != nil {
		return Stats{}, fmt.Errorf("encode header: %w", err)
	}

	for _, rec := range events {
		if err := enc.Encode(record{
			Type:      "event",
			Key:       rec.Key,
			UpdatedAt: rec.UpdatedAt,
			Data:      rec.Value,
		}); err != nil {
			return Stats{}, fmt.Errorf("encode event %s: %w", rec.Key, err)
		}
	}

	for _, rec := range episodes {
		if err := enc.Encode(record{
			Type:      "episode",
			Key:       rec.Key,
			UpdatedAt: rec.UpdatedAt,
			Data:      rec.Value,
		}); err != nil {
			return Stats{}, fmt.Errorf("encode episode %s: %w", rec.Key, err)
		}
	}

	return Stats{Events: len(events), Episodes: len(episodes)}, nil
}
