package alerts

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

const SignatureHeader = "X-Linkwatch-Signature"

// WebhookSender posts notifications as JSON with optional HMAC signing
type WebhookSender struct {
	URL    string
	Secret string
	Client *http.Client
}

// NewWebhookSender creates a webhook sender with a 10 second timeout
func NewWebhookSender(url, secret string) *WebhookSender {
	return &WebhookSender{
		URL:    url,
		Secret: secret,
		Client: &http.Client{Timeout: 10 * time.Second},
	}
}

type webhookPayload struct {
	Event          string `json:"event"`
	HostID         string `json:"host_id"`
	DisplayName    string `json:"display_name"`
	Address        string `json:"address"`
	Status         string `json:"status"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	Duration       string `json:"duration,omitempty"`
	DowntimeEvents int    `json:"downtime_events,omitempty"`
	Timestamp      string `json:"timestamp"`
}

// Send delivers n. Non-2xx responses are errors.
func (w *WebhookSender) Send(ctx context.Context, n Notification) error {
	body, err := json.Marshal(webhookPayload{
		Event:          "status_change",
		HostID:         n.HostID,
		DisplayName:    n.DisplayName,
		Address:        n.Address,
		Status:         n.Kind,
		Subject:        n.Subject,
		Message:        n.Body,
		Duration:       n.Duration,
		DowntimeEvents: n.DowntimeEvents,
		Timestamp:      n.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "linkwatch/1.0")

	if w.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(w.Secret, body))
	}

	resp, err := w.Client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook notification failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	log.Debug().Str("url", w.URL).Int("status", resp.StatusCode).Msg("Webhook notification sent")
	return nil
}

// Sign returns the hex HMAC-SHA256 of body
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
