// Package notify fans processed events out to push-channel subscribers
// and, when enabled, an HTTP webhook. Delivery is best-effort: a failed
// webhook or a slow subscriber never blocks or fails the originating
// operation.
package notify

import (
	"go.uber.org/zap"
)

// Envelope is the push-channel event format.
type Envelope struct {
	Event     string  `json:"event"`
	SessionID string  `json:"sessionId"`
	Data      Payload `json:"data"`
}

// Payload wraps event data with a success/error status.
type Payload struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// Notifier is the stateless fan-out for domain events.
type Notifier struct {
	hub     *Hub
	webhook *Webhook
	logger  *zap.Logger
}

// New creates a notifier. webhook may be nil when the feature is
// disabled.
func New(hub *Hub, webhook *Webhook, logger *zap.Logger) *Notifier {
	return &Notifier{hub: hub, webhook: webhook, logger: logger}
}

// Emit broadcasts a successful event.
func (n *Notifier) Emit(event, sessionID string, data any) {
	n.emit(event, sessionID, data, "success", "")
}

// EmitError broadcasts a failed event with a human-readable message.
func (n *Notifier) EmitError(event, sessionID, message string) {
	n.emit(event, sessionID, nil, "error", message)
}

func (n *Notifier) emit(event, sessionID string, data any, status, message string) {
	if n.hub != nil {
		n.hub.Broadcast(sessionID, Envelope{
			Event:     event,
			SessionID: sessionID,
			Data:      Payload{Status: status, Message: message, Data: data},
		})
	}
	if n.webhook != nil {
		go n.webhook.Send(event, sessionID, data, status, message)
	}
}
