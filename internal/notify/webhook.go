package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookSender delivers notifications to a generic JSON webhook (Slack- or
// Discord-compatible payloads both accept a single text field).
type WebhookSender struct {
	name       string
	webhookURL string
	field      string // payload field name, e.g. "text" or "content"
	client     *http.Client
}

// NewWebhookSender creates a WebhookSender posting {field: "title\nmessage"}
// to the given URL. It uses a default HTTP client with a 10-second timeout.
func NewWebhookSender(name, webhookURL, field string) *WebhookSender {
	if field == "" {
		field = "text"
	}
	return &WebhookSender{
		name:       name,
		webhookURL: webhookURL,
		field:      field,
		client:     &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts the notification to the webhook with the title in bold markdown.
func (w *WebhookSender) Send(ctx context.Context, title, message string) error {
	payload := map[string]string{
		w.field: fmt.Sprintf("*%s*\n%s", title, message),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook %s: marshal payload: %w", w.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook %s: create request: %w", w.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook %s: send request: %w", w.name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook %s: unexpected status %d: %s", w.name, resp.StatusCode, string(respBody))
	}

	return nil
}

// Name returns the sender identifier.
func (w *WebhookSender) Name() string {
	return w.name
}
