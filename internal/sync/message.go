package sync

import (
	"fmt"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// MessageHandler reconciles message events, delivery receipts and
// reactions into the message tables.
type MessageHandler struct {
	sessionID string
	db        *store.DB
	bus       *bus.Bus
	emitter   Emitter
	logger    *zap.Logger
	sub       subscriber
}

// NewMessageHandler creates a message handler for one session.
func NewMessageHandler(sessionID string, db *store.DB, b *bus.Bus, emitter Emitter, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{sessionID: sessionID, db: db, bus: b, emitter: emitter, logger: logger}
}

// Attach subscribes to the session's event feed. Idempotent.
func (h *MessageHandler) Attach() { h.sub.attach(h.bus, h.handle) }

// Detach unsubscribes. Idempotent.
func (h *MessageHandler) Detach() { h.sub.detach() }

func (h *MessageHandler) handle(evt bus.Event) {
	switch evt.Kind {
	case engine.EventHistorySet:
		if hs, ok := evt.Payload.(engine.HistorySet); ok {
			h.set(hs)
		}
	case engine.EventMessagesUpsert:
		if up, ok := evt.Payload.(engine.MessagesUpsert); ok {
			h.upsert(up)
		}
	case engine.EventMessagesUpdate:
		if patches, ok := evt.Payload.([]store.MessagePatch); ok {
			h.update(patches)
		}
	case engine.EventMessagesDelete:
		if del, ok := evt.Payload.(engine.MessagesDelete); ok {
			h.delete(del)
		}
	case engine.EventReceiptUpdate:
		if receipts, ok := evt.Payload.([]store.Receipt); ok {
			h.updateReceipts(receipts)
		}
	case engine.EventMessagesReaction:
		if reactions, ok := evt.Payload.([]engine.ReactionUpdate); ok {
			h.updateReactions(reactions)
		}
	}
}

func (h *MessageHandler) set(hs engine.HistorySet) {
	added, err := h.db.CreateMessages(h.sessionID, hs.Messages, hs.IsLatest)
	if err != nil {
		h.logger.Error("an error occurred during messages set", zap.Error(err))
		h.emitter.EmitError("messaging-history.set", h.sessionID, fmt.Sprintf("an error occurred during messages set: %v", err))
		return
	}
	h.logger.Info("synced messages", zap.Int("added", added))
	h.emitter.Emit("messaging-history.set", h.sessionID, map[string]int{"messages": added})
}

func (h *MessageHandler) upsert(up engine.MessagesUpsert) {
	if up.Type != "notify" && up.Type != "append" {
		return
	}
	for i := range up.Messages {
		m := up.Messages[i]
		m.SessionID = h.sessionID
		if err := h.db.UpsertMessage(&m); err != nil {
			h.logger.Error("an error occurred during message upsert", zap.Error(err), zap.String("id", m.ID))
			h.emitter.EmitError("messages.upsert", h.sessionID, fmt.Sprintf("an error occurred during message upsert: %v", err))
			continue
		}
		h.emitter.Emit("messages.upsert", h.sessionID, m)

		if up.Type == "notify" {
			h.ensureChat(&m)
		}
	}
}

// ensureChat re-injects a synthetic chats.upsert when a live message
// arrives for a chat that has not been synced yet.
func (h *MessageHandler) ensureChat(m *store.Message) {
	exists, err := h.db.ChatExists(h.sessionID, m.RemoteJID)
	if err != nil {
		h.logger.Error("error checking chat existence", zap.Error(err), zap.String("jid", m.RemoteJID))
		return
	}
	if exists {
		return
	}
	h.bus.Publish(bus.NewEvent(engine.EventChatsUpsert, []store.Chat{{
		ID:                    m.RemoteJID,
		ConversationTimestamp: m.MessageTimestamp,
		UnreadCount:           1,
	}}))
}

func (h *MessageHandler) update(patches []store.MessagePatch) {
	for i := range patches {
		p := &patches[i]
		found, err := h.db.UpdateMessage(h.sessionID, p)
		if err != nil {
			h.logger.Error("an error occurred during message update", zap.Error(err), zap.String("id", p.ID))
			h.emitter.EmitError("messages.update", h.sessionID, fmt.Sprintf("an error occurred during message update: %v", err))
			continue
		}
		if !found {
			h.logger.Info("got update for non existent message", zap.String("id", p.ID), zap.String("jid", p.RemoteJID))
			continue
		}
		h.emitter.Emit("messages.update", h.sessionID, p)
	}
}

func (h *MessageHandler) delete(del engine.MessagesDelete) {
	if del.All {
		if err := h.db.DeleteConversation(h.sessionID, del.RemoteJID); err != nil {
			h.logger.Error("an error occurred during messages delete", zap.Error(err), zap.String("jid", del.RemoteJID))
			h.emitter.EmitError("messages.delete", h.sessionID, fmt.Sprintf("an error occurred during messages delete: %v", err))
			return
		}
		h.emitter.Emit("messages.delete", h.sessionID, map[string]any{"jid": del.RemoteJID, "all": true})
		return
	}

	byJID := make(map[string][]string)
	for _, k := range del.Keys {
		byJID[k.RemoteJID] = append(byJID[k.RemoteJID], k.ID)
	}
	for jid, ids := range byJID {
		if err := h.db.DeleteMessages(h.sessionID, jid, ids); err != nil {
			h.logger.Error("an error occurred during messages delete", zap.Error(err), zap.String("jid", jid))
			h.emitter.EmitError("messages.delete", h.sessionID, fmt.Sprintf("an error occurred during messages delete: %v", err))
			continue
		}
		h.emitter.Emit("messages.delete", h.sessionID, map[string]any{"jid": jid, "ids": ids})
	}
}

func (h *MessageHandler) updateReceipts(receipts []store.Receipt) {
	for i := range receipts {
		r := receipts[i]
		exists, err := h.db.MessageExists(h.sessionID, r.RemoteJID, r.MessageID)
		if err != nil {
			h.logger.Error("an error occurred during message receipt update", zap.Error(err))
			continue
		}
		if !exists {
			h.logger.Debug("got receipt update for non existent message", zap.String("id", r.MessageID))
			continue
		}
		if err := h.db.UpsertReceipt(h.sessionID, &r); err != nil {
			h.logger.Error("an error occurred during message receipt update", zap.Error(err))
			h.emitter.EmitError("message-receipt.update", h.sessionID, fmt.Sprintf("an error occurred during message receipt update: %v", err))
			continue
		}
		h.emitter.Emit("message-receipt.update", h.sessionID, r)
	}
}

func (h *MessageHandler) updateReactions(reactions []engine.ReactionUpdate) {
	for _, ru := range reactions {
		exists, err := h.db.MessageExists(h.sessionID, ru.Key.RemoteJID, ru.Key.ID)
		if err != nil {
			h.logger.Error("an error occurred during message reaction update", zap.Error(err))
			continue
		}
		if !exists {
			h.logger.Debug("got reaction update for non existent message", zap.String("id", ru.Key.ID))
			continue
		}
		reaction := store.Reaction{
			RemoteJID:         ru.Key.RemoteJID,
			MessageID:         ru.Key.ID,
			AuthorID:          ru.AuthorID,
			Text:              ru.Text,
			ReactionTimestamp: ru.Timestamp,
		}
		if err := h.db.SetReaction(h.sessionID, &reaction); err != nil {
			h.logger.Error("an error occurred during message reaction update", zap.Error(err))
			h.emitter.EmitError("messages.reaction", h.sessionID, fmt.Sprintf("an error occurred during message reaction update: %v", err))
			continue
		}
		h.emitter.Emit("messages.reaction", h.sessionID, reaction)
	}
}
