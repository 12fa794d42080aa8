package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// Hub is the push-channel broadcaster. Subscribers connect over
// websocket scoped to one session id and receive every event envelope
// emitted for that session.
type Hub struct {
	apiKey string
	logger *zap.Logger

	mu    sync.Mutex
	conns map[string]map[*websocket.Conn]struct{}
}

// NewHub creates an empty hub guarded by the given API key.
func NewHub(apiKey string, logger *zap.Logger) *Hub {
	return &Hub{
		apiKey: apiKey,
		logger: logger,
		conns:  make(map[string]map[*websocket.Conn]struct{}),
	}
}

// ServeHTTP upgrades the request to a websocket subscription. The
// session id comes from the session_id query parameter; the API key
// from the token header or query parameter.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("token")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token != h.apiKey {
		http.Error(w, "invalid API key", http.StatusUnauthorized)
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}

	h.add(sessionID, conn)
	defer h.remove(sessionID, conn)
	h.logger.Info("push subscriber connected", zap.String("session", sessionID))

	// Drain and discard client frames; returns when the peer closes.
	ctx := r.Context()
	for {
		if _, _, err := conn.Read(ctx); err != nil {
			h.logger.Info("push subscriber disconnected", zap.String("session", sessionID))
			return
		}
	}
}

// Broadcast sends an envelope to every subscriber of the session.
func (h *Hub) Broadcast(sessionID string, envelope Envelope) {
	data, err := json.Marshal(envelope)
	if err != nil {
		h.logger.Error("error encoding push envelope", zap.Error(err))
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns[sessionID]))
	for conn := range h.conns[sessionID] {
		conns = append(conns, conn)
	}
	h.mu.Unlock()

	// Writes happen off the caller's goroutine so one slow subscriber
	// never stalls the emitting handler.
	for _, conn := range conns {
		go func(conn *websocket.Conn) {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				h.logger.Warn("push write failed", zap.Error(err), zap.String("session", sessionID))
			}
		}(conn)
	}
}

// SubscriberCount returns the number of live subscribers for a session.
func (h *Hub) SubscriberCount(sessionID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns[sessionID])
}

func (h *Hub) add(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.conns[sessionID] == nil {
		h.conns[sessionID] = make(map[*websocket.Conn]struct{})
	}
	h.conns[sessionID][conn] = struct{}{}
}

func (h *Hub) remove(sessionID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.conns[sessionID], conn)
	if len(h.conns[sessionID]) == 0 {
		delete(h.conns, sessionID)
	}
}
