package server

import (
	"encoding/json"
	"net/http"
)

// patchConfigRequest is the JSON body for PATCH /v1/entities/{key}/config.
// An empty string value deletes the setting.
type patchConfigRequest struct {
	Settings map[string]string `json:"settings"`
}

// handleGetConfig handles GET /v1/entities/{key}/config.
func (s *LoomServer) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cfg, err := s.registry.Get(r.Context(), key).GetConfig(r.Context())
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handlePatchConfig handles PATCH /v1/entities/{key}/config.
func (s *LoomServer) handlePatchConfig(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req patchConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if len(req.Settings) == 0 {
		writeError(w, http.StatusBadRequest, "settings patch is required")
		return
	}

	cfg, err := s.registry.Get(r.Context(), key).PutConfig(r.Context(), req.Settings)
	if err != nil {
		writeOpError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// handleInvalidateConfig handles POST /v1/entities/{key}/config/invalidate.
func (s *LoomServer) handleInvalidateConfig(w http.ResponseWriter, r *http.Request) {
	key, err := entityKey(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.registry.Get(r.Context(), key).InvalidateConfig(r.Context())
	w.WriteHeader(http.StatusNoContent)
}
