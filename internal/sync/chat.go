package sync

import (
	"fmt"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// ChatHandler reconciles chat events into the chats table.
type ChatHandler struct {
	sessionID string
	db        *store.DB
	bus       *bus.Bus
	emitter   Emitter
	logger    *zap.Logger
	sub       subscriber
}

// NewChatHandler creates a chat handler for one session.
func NewChatHandler(sessionID string, db *store.DB, b *bus.Bus, emitter Emitter, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{sessionID: sessionID, db: db, bus: b, emitter: emitter, logger: logger}
}

// Attach subscribes to the session's event feed. Idempotent.
func (h *ChatHandler) Attach() { h.sub.attach(h.bus, h.handle) }

// Detach unsubscribes. Idempotent.
func (h *ChatHandler) Detach() { h.sub.detach() }

func (h *ChatHandler) handle(evt bus.Event) {
	switch evt.Kind {
	case engine.EventHistorySet:
		if hs, ok := evt.Payload.(engine.HistorySet); ok {
			h.set(hs)
		}
	case engine.EventChatsUpsert:
		if chats, ok := evt.Payload.([]store.Chat); ok {
			h.upsert(chats)
		}
	case engine.EventChatsUpdate:
		if patches, ok := evt.Payload.([]store.ChatPatch); ok {
			h.update(patches)
		}
	case engine.EventChatsDelete:
		if ids, ok := evt.Payload.([]string); ok {
			h.delete(ids)
		}
	}
}

func (h *ChatHandler) set(hs engine.HistorySet) {
	added, err := h.db.CreateChats(h.sessionID, hs.Chats, hs.IsLatest)
	if err != nil {
		h.logger.Error("an error occurred during chats set", zap.Error(err))
		h.emitter.EmitError("chats.set", h.sessionID, fmt.Sprintf("an error occurred during chats set: %v", err))
		return
	}
	h.logger.Info("synced chats", zap.Int("added", added))
	h.emitter.Emit("chats.set", h.sessionID, map[string]int{"added": added})
}

func (h *ChatHandler) upsert(chats []store.Chat) {
	applied, errs := fanOut(chats, func(c store.Chat) error {
		c.SessionID = h.sessionID
		return h.db.UpsertChat(&c)
	})
	for _, err := range errs {
		h.logger.Error("an error occurred during chats upsert", zap.Error(err))
	}
	if len(applied) > 0 {
		h.emitter.Emit("chats.upsert", h.sessionID, map[string]any{"chats": applied})
	} else if len(chats) > 0 {
		h.emitter.EmitError("chats.upsert", h.sessionID, fmt.Sprintf("an error occurred during chats upsert: %v", errs[0]))
	}
}

func (h *ChatHandler) update(patches []store.ChatPatch) {
	for i := range patches {
		p := &patches[i]
		found, err := h.db.UpdateChat(h.sessionID, p)
		if err != nil {
			h.logger.Error("an error occurred during chat update", zap.Error(err), zap.String("id", p.ID))
			h.emitter.EmitError("chats.update", h.sessionID, fmt.Sprintf("an error occurred during chat update: %v", err))
			continue
		}
		if !found {
			h.logger.Info("got update for non existent chat", zap.String("id", p.ID))
			continue
		}
		h.emitter.Emit("chats.update", h.sessionID, p)
	}
}

func (h *ChatHandler) delete(ids []string) {
	if err := h.db.DeleteChats(h.sessionID, ids); err != nil {
		h.logger.Error("an error occurred during chats delete", zap.Error(err))
		h.emitter.EmitError("chats.delete", h.sessionID, fmt.Sprintf("an error occurred during chats delete: %v", err))
		return
	}
	h.emitter.Emit("chats.delete", h.sessionID, map[string]any{"ids": ids})
}
