package server

import (
	"encoding/json"
	"net/http"

	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/nonce"
)

// challengeRequest is the JSON body for POST /v1/auth/challenge.
type challengeRequest struct {
	AgentID string `json:"agent_id"`
}

// challengeResponse carries a fresh single-use nonce.
type challengeResponse struct {
	Nonce     string `json:"nonce"`
	ExpiresIn int    `json:"expires_in_seconds"`
}

// validateRequest is the JSON body for POST /v1/auth/validate.
type validateRequest struct {
	AgentID string `json:"agent_id"`
	Nonce   string `json:"nonce"`
}

// handleChallenge handles POST /v1/auth/challenge.
func (s *LoomServer) handleChallenge(w http.ResponseWriter, r *http.Request) {
	var req challengeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" {
		writeError(w, http.StatusBadRequest, "agent_id is required")
		return
	}

	value, err := s.nonces.Generate(r.Context(), req.AgentID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to generate challenge")
		return
	}
	writeJSON(w, http.StatusOK, challengeResponse{
		Nonce:     value,
		ExpiresIn: int(nonce.DefaultTTL.Seconds()),
	})
}

// handleValidate handles POST /v1/auth/validate. Expired, unknown, and
// replayed nonces all get the same 401; no detail is leaked.
func (s *LoomServer) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.AgentID == "" || req.Nonce == "" {
		writeError(w, http.StatusBadRequest, "agent_id and nonce are required")
		return
	}

	valid, err := s.nonces.Validate(r.Context(), req.AgentID, req.Nonce)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to validate challenge")
		return
	}
	if !valid {
		writeOpError(w, model.ErrNonceInvalid)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
}
