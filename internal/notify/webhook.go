package notify

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/matheus3301/wagate/internal/config"
	"go.uber.org/zap"
)

// webhookBody is the HTTP callback envelope.
type webhookBody struct {
	SessionID string `json:"sessionId"`
	Event     string `json:"event"`
	Data      any    `json:"data,omitempty"`
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
}

// Webhook delivers events to an external HTTP callback. Delivery is
// fire-and-forget: failures are logged and swallowed, never retried.
type Webhook struct {
	url    string
	filter *config.EventFilter
	client *http.Client
	logger *zap.Logger
}

// NewWebhook creates a webhook sender.
func NewWebhook(url string, filter *config.EventFilter, logger *zap.Logger) *Webhook {
	return &Webhook{
		url:    url,
		filter: filter,
		client: &http.Client{Timeout: 10 * time.Second},
		logger: logger,
	}
}

// Send posts one event envelope. Events excluded by the filter are
// dropped silently.
func (w *Webhook) Send(event, sessionID string, data any, status, message string) {
	if !w.filter.Allows(event) {
		return
	}

	body, err := json.Marshal(webhookBody{
		SessionID: sessionID,
		Event:     event,
		Data:      data,
		Status:    status,
		Message:   message,
	})
	if err != nil {
		w.logger.Error("error encoding webhook body", zap.Error(err), zap.String("event", event))
		return
	}

	resp, err := w.client.Post(w.url, "application/json", bytes.NewReader(body))
	if err != nil {
		w.logger.Error("error sending webhook", zap.Error(err), zap.String("event", event), zap.String("session", sessionID))
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		w.logger.Error("webhook returned non-success status",
			zap.Int("status", resp.StatusCode), zap.String("event", event), zap.String("session", sessionID))
	}
}
