package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/loomworks/loom/internal/idgen"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/triage"
)

// ingestItemRequest is the JSON body for POST /v1/entities/{key}/items.
type ingestItemRequest struct {
	ID         string    `json:"id,omitempty"`
	Sender     string    `json:"sender"`
	Subject    string    `json:"subject"`
	Snippet    string    `json:"snippet,omitempty"`
	ReceivedAt time.Time `json:"received_at,omitzero"`
}

// handleIngestItem handles POST /v1/entities/{key}/items. The item
// waits in the store until the entity's next processing episode.
func (s *LoomServer) handleIngestItem(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ingestItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Sender == "" {
		writeError(w, http.StatusBadRequest, "sender is required")
		return
	}
	if req.ID == "" {
		req.ID, err = idgen.Generate()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate item id")
			return
		}
	}
	if req.ReceivedAt.IsZero() {
		req.ReceivedAt = time.Now().UTC()
	}

	item := model.TriageItem{
		ID:         req.ID,
		Sender:     req.Sender,
		Subject:    req.Subject,
		Snippet:    req.Snippet,
		ReceivedAt: req.ReceivedAt,
	}
	if err := triage.SaveItem(r.Context(), s.store, key, item); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleFireAlarm handles POST /v1/entities/{key}/alarm: run a
// processing episode now instead of waiting for the schedule.
func (s *LoomServer) handleFireAlarm(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Get(r.Context(), key).OnAlarm(r.Context(), time.Now().UTC()); err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entityStatusResponse is the body for GET /v1/entities/{key}/status.
type entityStatusResponse struct {
	Entity    model.EntityKey       `json:"entity"`
	State     model.ProcessingState `json:"state"`
	NextAlarm time.Time             `json:"next_alarm,omitzero"`
}

// handleEntityStatus handles GET /v1/entities/{key}/status.
func (s *LoomServer) handleEntityStatus(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	a := s.registry.Get(r.Context(), key)
	resp := entityStatusResponse{
		Entity: key,
		State:  a.State(),
	}
	if entry, ok := s.registry.Scheduler().Pending(key); ok {
		resp.NextAlarm = entry.FireAt
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleEvictEntity handles DELETE /v1/entities/{key}: flush and drop
// the resident actor. Durable state and the armed alarm survive.
func (s *LoomServer) handleEvictEntity(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Evict(r.Context(), key); err != nil {
		writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
