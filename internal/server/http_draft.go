package server

import (
	"encoding/json"
	"net/http"
	"time"
)

// putDraftRequest is the JSON body for PUT /v1/entities/{key}/draft.
type putDraftRequest struct {
	Content   []byte    `json:"content"`
	DeviceID  string    `json:"device_id"`
	UpdatedAt time.Time `json:"updated_at"`
}

// handleGetDraft handles GET /v1/entities/{key}/draft.
func (s *LoomServer) handleGetDraft(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	d, err := s.registry.Get(r.Context(), key).GetDraft(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handlePutDraft handles PUT /v1/entities/{key}/draft. A write that
// lost to a newer draft gets a 409 carrying the winner.
func (s *LoomServer) handlePutDraft(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req putDraftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UpdatedAt.IsZero() {
		req.UpdatedAt = time.Now().UTC()
	}

	d, err := s.registry.Get(r.Context(), key).PutDraft(r.Context(), req.Content, req.DeviceID, req.UpdatedAt)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// handleDeleteDraft handles DELETE /v1/entities/{key}/draft.
func (s *LoomServer) handleDeleteDraft(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.registry.Get(r.Context(), key).ClearDraft(r.Context()); err != nil {
		writeOpError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
