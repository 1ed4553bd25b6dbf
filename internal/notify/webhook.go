package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
)

// Alert is the JSON document posted to the webhook.
type Alert struct {
	Type      string         `json:"type"`
	Severity  string         `json:"severity"`
	Subject   string         `json:"subject"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// WebhookSender posts alerts as JSON to a URL.
type WebhookSender struct {
	url    string
	client *http.Client
}

// NewWebhookSender creates a WebhookSender with the given request timeout.
func NewWebhookSender(url string, timeout time.Duration) *WebhookSender {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSender{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

// Name implements Sender.
func (w *WebhookSender) Name() string { return "webhook" }

// Send implements Sender.
func (w *WebhookSender) Send(ctx context.Context, msg Message) error {
	alert := Alert{
		Type:     "stage_failure",
		Severity: "high",
		Subject:  msg.Subject,
		Message:  msg.Body,
		Details: map[string]any{
			"stage": msg.Failure.Stage,
			"kind":  msg.Failure.Kind,
		},
		Timestamp: msg.Failure.At.UTC(),
	}
	if msg.Failure.Code != "" {
		alert.Details["code"] = msg.Failure.Code
	}

	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "notify: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
