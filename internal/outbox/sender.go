// Package outbox is the durable send queue. Messages are queued with a
// client-generated id, drained by a poller through the owning session's
// engine connection, and acknowledged through the notifier.
package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"github.com/matheus3301/wagate/internal/sync"
	"go.uber.org/zap"
)

const pollInterval = 500 * time.Millisecond

// ConnResolver resolves a session id to its live engine connection.
// The session manager implements it.
type ConnResolver interface {
	Conn(sessionID string) (engine.Conn, error)
}

// Sender drains the outbox across all sessions.
type Sender struct {
	db       *store.DB
	resolver ConnResolver
	emitter  sync.Emitter
	logger   *zap.Logger
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewSender creates an outbox sender.
func NewSender(db *store.DB, resolver ConnResolver, emitter sync.Emitter, logger *zap.Logger) *Sender {
	return &Sender{
		db:       db,
		resolver: resolver,
		emitter:  emitter,
		logger:   logger,
	}
}

// Queue enqueues a text message for a session and returns the client
// message id.
func (s *Sender) Queue(sessionID, remoteJID, body string) (string, error) {
	clientMsgID := uuid.NewString()
	if err := s.db.QueueOutbox(sessionID, clientMsgID, remoteJID, body); err != nil {
		return "", err
	}
	return clientMsgID, nil
}

// Start begins polling for queued messages.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the poller and waits for the in-flight pass to finish.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.processPending(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (s *Sender) processPending(ctx context.Context) {
	pending, err := s.db.PendingOutbox()
	if err != nil {
		s.logger.Error("error reading outbox", zap.Error(err))
		return
	}

	for _, entry := range pending {
		s.send(ctx, entry)
	}
}

func (s *Sender) send(ctx context.Context, entry store.OutboxEntry) {
	conn, err := s.resolver.Conn(entry.SessionID)
	if err != nil {
		// The session may be restoring; the entry stays queued.
		s.logger.Debug("outbox entry waiting for session",
			zap.String("session", entry.SessionID), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	if err := s.db.MarkOutboxSending(entry.ClientMsgID); err != nil {
		s.logger.Error("error marking outbox sending", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		return
	}

	// Optimistic record so the message is visible before the ack.
	now := time.Now().UnixMilli()
	_ = s.db.UpsertMessage(&store.Message{
		SessionID:        entry.SessionID,
		RemoteJID:        entry.RemoteJID,
		ID:               entry.ClientMsgID,
		Body:             entry.Body,
		MessageType:      "text",
		FromMe:           true,
		Status:           "sending",
		MessageTimestamp: now,
	})

	serverMsgID, err := conn.SendText(ctx, entry.RemoteJID, entry.Body)
	if err != nil {
		s.logger.Error("error sending message", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
		_ = s.db.MarkOutboxFailed(entry.ClientMsgID, err.Error())
		_, _ = s.db.UpdateMessage(entry.SessionID, &store.MessagePatch{
			RemoteJID: entry.RemoteJID,
			ID:        entry.ClientMsgID,
			Status:    strPtr("failed"),
		})
		s.emitter.EmitError("messages.send", entry.SessionID, err.Error())
		return
	}

	if err := s.db.MarkOutboxSent(entry.ClientMsgID, serverMsgID); err != nil {
		s.logger.Error("error marking outbox sent", zap.Error(err), zap.String("client_msg_id", entry.ClientMsgID))
	}
	_, _ = s.db.UpdateMessage(entry.SessionID, &store.MessagePatch{
		RemoteJID: entry.RemoteJID,
		ID:        entry.ClientMsgID,
		Status:    strPtr("sent"),
	})

	s.logger.Info("message sent",
		zap.String("session", entry.SessionID),
		zap.String("client_msg_id", entry.ClientMsgID),
		zap.String("server_msg_id", serverMsgID))
	s.emitter.Emit("messages.send", entry.SessionID, map[string]string{
		"clientMsgId": entry.ClientMsgID,
		"serverMsgId": serverMsgID,
		"remoteJid":   entry.RemoteJID,
	})
}

func strPtr(s string) *string { return &s }
