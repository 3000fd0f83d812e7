package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loomworks/loom/internal/model"
)

func newTestServer(t *testing.T, handler http.HandlerFunc) *HTTPClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewHTTPClient(srv.URL, "")
}

func TestGetConfig(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/entities/tenant:acme/config" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(model.Config{
			Settings: map[string]string{"plan": "elm"},
			Version:  3,
		})
	})

	cfg, err := c.GetConfig(context.Background(), "tenant:acme")
	if err != nil {
		t.Fatalf("GetConfig: %v", err)
	}
	if cfg.Version != 3 || cfg.Plan() != "elm" {
		t.Errorf("config = %+v", cfg)
	}
}

func TestPatchConfigSendsSettings(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Settings map[string]string `json:"settings"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("decode body: %v", err)
		}
		if body.Settings["theme"] != "dark" {
			t.Errorf("body = %+v", body)
		}
		json.NewEncoder(w).Encode(model.Config{Settings: body.Settings, Version: 1})
	})

	cfg, err := c.PatchConfig(context.Background(), "tenant:acme", map[string]string{"theme": "dark"})
	if err != nil {
		t.Fatalf("PatchConfig: %v", err)
	}
	if cfg.Version != 1 {
		t.Errorf("config = %+v", cfg)
	}
}

func TestPutDraftConflictIsAPIError(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "draft superseded"})
	})

	_, err := c.PutDraft(context.Background(), "triage:alice", []byte("x"), "phone", time.Now())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("want APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusConflict || apiErr.Message != "draft superseded" {
		t.Errorf("error = %+v", apiErr)
	}
}

func TestDeleteDraftNoContent(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			t.Errorf("method = %s", r.Method)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := c.DeleteDraft(context.Background(), "triage:alice"); err != nil {
		t.Fatalf("DeleteDraft: %v", err)
	}
}

func TestValidateReplayReturnsFalse(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"error": "invalid nonce"})
	})

	valid, err := c.Validate(context.Background(), "agent-7", "stale-nonce")
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if valid {
		t.Error("replayed nonce reported valid")
	}
}

func TestAuthHeaderSet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("Authorization = %q", got)
		}
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	t.Cleanup(srv.Close)

	c := NewHTTPClient(srv.URL, "secret")
	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if status != "ok" {
		t.Errorf("status = %q", status)
	}
}
