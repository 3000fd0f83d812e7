package triage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomworks/loom/internal/model"
)

// HTTPClassifier calls an external classification service. The request
// carries the item; the response is {"category": "...", "confidence": 0.9}.
type HTTPClassifier struct {
	url        string
	httpClient *http.Client
}

// NewHTTPClassifier creates a classifier posting to url.
func NewHTTPClassifier(url string) *HTTPClassifier {
	return &HTTPClassifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClassifier) Classify(ctx context.Context, item model.TriageItem) (string, float64, error) {
	body, err := json.Marshal(item)
	if err != nil {
		return "", 0, fmt.Errorf("encode item: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("classifier request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", 0, fmt.Errorf("classifier returned status %d", resp.StatusCode)
	}

	var out struct {
		Category   string  `json:"category"`
		Confidence float64 `json:"confidence"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return "", 0, fmt.Errorf("decode classifier response: %w", err)
	}
	return out.Category, out.Confidence, nil
}

// WebhookMailer posts composed digests to a webhook endpoint.
type WebhookMailer struct {
	url        string
	httpClient *http.Client
}

// NewWebhookMailer creates a mailer posting to url.
func NewWebhookMailer(url string) *WebhookMailer {
	return &WebhookMailer{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

func (m *WebhookMailer) Send(ctx context.Context, entity model.EntityKey, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"entity":  entity.String(),
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return fmt.Errorf("encode digest: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("digest webhook request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("digest webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// UnsortedClassifier assigns every item to the unsorted category. It
// backs deployments with no classifier service, where entity rules do
// all the sorting.
type UnsortedClassifier struct{}

func (UnsortedClassifier) Classify(context.Context, model.TriageItem) (string, float64, error) {
	return CategoryUnsorted, 0, nil
}

// LogMailer writes digests to the log instead of dispatching them.
// Used in dev mode.
type LogMailer struct{}

func (LogMailer) Send(_ context.Context, entity model.EntityKey, subject, body string) error {
	slog.Info("digest composed", "entity", entity, "subject", subject, "bytes", len(body))
	return nil
}
