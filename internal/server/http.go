package server

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewHTTPHandler returns an http.Handler with all routes registered.
// When authToken is non-empty, requests (except GET /v1/health and
// GET /metrics) must include a valid Authorization: Bearer <token>
// header.
func (s *LoomServer) NewHTTPHandler(authToken string) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/entities/{key}/config", s.handleGetConfig)
	mux.HandleFunc("PATCH /v1/entities/{key}/config", s.handlePatchConfig)
	mux.HandleFunc("POST /v1/entities/{key}/config/invalidate", s.handleInvalidateConfig)

	mux.HandleFunc("GET /v1/entities/{key}/draft", s.handleGetDraft)
	mux.HandleFunc("PUT /v1/entities/{key}/draft", s.handlePutDraft)
	mux.HandleFunc("DELETE /v1/entities/{key}/draft", s.handleDeleteDraft)

	mux.HandleFunc("POST /v1/entities/{key}/events", s.handleAppendEvents)
	mux.HandleFunc("POST /v1/entities/{key}/events/flush", s.handleFlushEvents)

	mux.HandleFunc("POST /v1/entities/{key}/items", s.handleIngestItem)
	mux.HandleFunc("POST /v1/entities/{key}/alarm", s.handleFireAlarm)
	mux.HandleFunc("GET /v1/entities/{key}/status", s.handleEntityStatus)
	mux.HandleFunc("DELETE /v1/entities/{key}", s.handleEvictEntity)

	mux.HandleFunc("POST /v1/auth/challenge", s.handleChallenge)
	mux.HandleFunc("POST /v1/auth/validate", s.handleValidate)

	mux.HandleFunc("GET /v1/health", s.handleHealth)
	mux.Handle("GET /metrics", promhttp.Handler())

	return RecoveryMiddleware(LoggingMiddleware(AuthMiddleware(authToken, mux)))
}
