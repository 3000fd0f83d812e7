package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// appendEventsRequest is the JSON body for POST /v1/entities/{key}/events.
type appendEventsRequest struct {
	Events []model.AnalyticsEvent `json:"events"`
}

// handleAppendEvents handles POST /v1/entities/{key}/events. Events are
// buffered in memory and flushed in batches; the 202 means accepted,
// not durable.
func (s *LoomServer) handleAppendEvents(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req appendEventsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "events are required")
		return
	}

	a := s.registry.Get(r.Context(), key)
	now := time.Now().UTC()
	for _, ev := range req.Events {
		if ev.EventType == "" {
			writeError(w, http.StatusBadRequest, "event_type is required")
			return
		}
		if ev.OccurredAt.IsZero() {
			ev.OccurredAt = now
		}
		if err := a.AppendEvent(r.Context(), ev); err != nil {
			writeOpError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Events)})
}

// handleFlushEvents handles POST /v1/entities/{key}/events/flush.
func (s *LoomServer) handleFlushEvents(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Get(r.Context(), key).FlushEvents(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
