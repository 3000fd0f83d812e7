package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// HTTPClient implements LoomClient using the loom HTTP/JSON REST API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an
// Authorization header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func entityPath(entity, suffix string) string {
	return "/v1/entities/" + url.PathEscape(entity) + suffix
}

// --- Config ---

func (c *HTTPClient) GetConfig(ctx context.Context, entity string) (*model.Config, error) {
	var cfg model.Config
	if err := c.doJSON(ctx, http.MethodGet, entityPath(entity, "/config"), nil, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) PatchConfig(ctx context.Context, entity string, settings map[string]string) (*model.Config, error) {
	body := map[string]any{"settings": settings}
	var cfg model.Config
	if err := c.doJSON(ctx, http.MethodPatch, entityPath(entity, "/config"), body, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *HTTPClient) InvalidateConfig(ctx context.Context, entity string) error {
	return c.doJSON(ctx, http.MethodPost, entityPath(entity, "/config/invalidate"), nil, nil)
}

// --- Draft ---

func (c *HTTPClient) GetDraft(ctx context.Context, entity string) (*model.Draft, error) {
	var d model.Draft
	if err := c.doJSON(ctx, http.MethodGet, entityPath(entity, "/draft"), nil, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) PutDraft(ctx context.Context, entity string, content []byte, deviceID string, updatedAt time.Time) (*model.Draft, error) {
	body := map[string]any{
		"content":    content,
		"device_id":  deviceID,
		"updated_at": updatedAt,
	}
	var d model.Draft
	if err := c.doJSON(ctx, http.MethodPut, entityPath(entity, "/draft"), body, &d); err != nil {
		return nil, err
	}
	return &d, nil
}

func (c *HTTPClient) DeleteDraft(ctx context.Context, entity string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(entity, "/draft"), nil, nil)
}

// --- Analytics events ---

func (c *HTTPClient) AppendEvents(ctx context.Context, entity string, events []model.AnalyticsEvent) error {
	body := map[string]any{"events": events}
	return c.doJSON(ctx, http.MethodPost, entityPath(entity, "/events"), body, nil)
}

func (c *HTTPClient) FlushEvents(ctx context.Context, entity string) error {
	return c.doJSON(ctx, http.MethodPost, entityPath(entity, "/events/flush"), nil, nil)
}

// --- Triage ---

func (c *HTTPClient) IngestItem(ctx context.Context, entity string, req *IngestItemRequest) (*model.TriageItem, error) {
	var item model.TriageItem
	if err := c.doJSON(ctx, http.MethodPost, entityPath(entity, "/items"), req, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *HTTPClient) FireAlarm(ctx context.Context, entity string) error {
	return c.doJSON(ctx, http.MethodPost, entityPath(entity, "/alarm"), nil, nil)
}

// --- Entity lifecycle ---

func (c *HTTPClient) EntityStatus(ctx context.Context, entity string) (*EntityStatus, error) {
	var status EntityStatus
	if err := c.doJSON(ctx, http.MethodGet, entityPath(entity, "/status"), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *HTTPClient) EvictEntity(ctx context.Context, entity string) error {
	return c.doJSON(ctx, http.MethodDelete, entityPath(entity, ""), nil, nil)
}

// --- Auth challenges ---

func (c *HTTPClient) Challenge(ctx context.Context, agentID string) (*ChallengeResponse, error) {
	body := map[string]string{"agent_id": agentID}
	var resp ChallengeResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/auth/challenge", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) Validate(ctx context.Context, agentID, nonce string) (bool, error) {
	body := map[string]string{"agent_id": agentID, "nonce": nonce}
	var resp struct {
		Valid bool `json:"valid"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/v1/auth/validate", body, &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized {
			return false, nil
		}
		return false, err
	}
	return resp.Valid, nil
}

// --- Health ---

func (c *HTTPClient) Health(ctx context.Context) (string, error) {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &resp); err != nil {
		return "", err
	}
	return resp.Status, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// doJSON performs an HTTP request with optional JSON body and decodes
// the JSON response. If result is nil, the response body is discarded
// (for DELETE/204 responses).
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	// 204 No Content means success with no body.
	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Error != "" {
			return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: string(respBody)}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
