// Package server exposes the coordination actors over HTTP. Every
// entity-scoped route resolves the actor through the registry, so
// all handler work is serialized per entity.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/loomworks/loom/internal/actor"
	"github.com/loomworks/loom/internal/model"
	"github.com/loomworks/loom/internal/nonce"
	"github.com/loomworks/loom/internal/store"
)

// LoomServer handles the HTTP API.
type LoomServer struct {
	registry *actor.Registry
	store    store.Store
	nonces   nonce.Store
}

// New returns a LoomServer backed by the given registry, store, and
// nonce store.
func New(registry *actor.Registry, s store.Store, nonces nonce.Store) *LoomServer {
	return &LoomServer{
		registry: registry,
		store:    s,
		nonces:   nonces,
	}
}

// handleHealth handles GET /v1/health.
func (s *LoomServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// entityKey extracts and validates the {key} path segment.
func entityKey(r *http.Request) (model.EntityKey, error) {
	return model.ParseEntityKey(r.PathValue("key"))
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeOpError maps an operation error to its HTTP status. A stale
// draft write is a conflict that carries the authoritative draft so
// the client can reconcile.
func writeOpError(w http.ResponseWriter, err error) {
	var stale *model.StaleWriteError
	var input model.InputError
	switch {
	case errors.As(err, &stale):
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":         "draft superseded",
			"authoritative": stale.Authoritative,
		})
	case errors.As(err, &input):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, model.ErrNonceInvalid):
		writeError(w, http.StatusUnauthorized, "invalid nonce")
	case errors.Is(err, model.ErrStorageUnavailable):
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
