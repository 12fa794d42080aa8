package sync

import (
	"fmt"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// ContactHandler reconciles contact events into the contacts table.
type ContactHandler struct {
	sessionID string
	db        *store.DB
	bus       *bus.Bus
	emitter   Emitter
	logger    *zap.Logger
	sub       subscriber
}

// NewContactHandler creates a contact handler for one session.
func NewContactHandler(sessionID string, db *store.DB, b *bus.Bus, emitter Emitter, logger *zap.Logger) *ContactHandler {
	return &ContactHandler{sessionID: sessionID, db: db, bus: b, emitter: emitter, logger: logger}
}

// Attach subscribes to the session's event feed. Idempotent.
func (h *ContactHandler) Attach() { h.sub.attach(h.bus, h.handle) }

// Detach unsubscribes. Idempotent.
func (h *ContactHandler) Detach() { h.sub.detach() }

func (h *ContactHandler) handle(evt bus.Event) {
	switch evt.Kind {
	case engine.EventHistorySet:
		if hs, ok := evt.Payload.(engine.HistorySet); ok {
			h.set(hs)
		}
	case engine.EventContactsUpsert:
		if contacts, ok := evt.Payload.([]store.Contact); ok {
			h.upsert(contacts)
		}
	case engine.EventContactsUpdate:
		if patches, ok := evt.Payload.([]store.ContactPatch); ok {
			h.update(patches)
		}
	}
}

// set applies a history batch as upserts rather than insert-or-replace:
// contacts arrive in several partial batches, so deleting absentees
// would drop contacts delivered in a previous batch.
func (h *ContactHandler) set(hs engine.HistorySet) {
	applied, errs := fanOut(hs.Contacts, func(c store.Contact) error {
		c.SessionID = h.sessionID
		return h.db.UpsertContact(&c)
	})
	for _, err := range errs {
		h.logger.Error("an error occurred during contacts set", zap.Error(err))
	}
	if len(errs) == 0 || len(applied) > 0 {
		h.logger.Info("synced contacts", zap.Int("contacts", len(applied)))
		h.emitter.Emit("contacts.set", h.sessionID, map[string]int{"contacts": len(applied)})
	} else {
		h.emitter.EmitError("contacts.set", h.sessionID, fmt.Sprintf("an error occurred during contacts set: %v", errs[0]))
	}
}

func (h *ContactHandler) upsert(contacts []store.Contact) {
	if len(contacts) == 0 {
		return
	}
	added, err := h.db.CreateContacts(h.sessionID, contacts)
	if err != nil {
		h.logger.Error("an error occurred during contacts upsert", zap.Error(err))
		h.emitter.EmitError("contacts.upsert", h.sessionID, fmt.Sprintf("an error occurred during contacts upsert: %v", err))
		return
	}
	h.emitter.Emit("contacts.upsert", h.sessionID, map[string]int{"added": added})
}

func (h *ContactHandler) update(patches []store.ContactPatch) {
	for i := range patches {
		p := &patches[i]
		found, err := h.db.UpdateContact(h.sessionID, p)
		if err != nil {
			h.logger.Error("an error occurred during contact update", zap.Error(err), zap.String("id", p.ID))
			h.emitter.EmitError("contacts.update", h.sessionID, fmt.Sprintf("an error occurred during contact update: %v", err))
			continue
		}
		if !found {
			h.logger.Info("got update for non existent contact", zap.String("id", p.ID))
			continue
		}
		h.emitter.Emit("contacts.update", h.sessionID, p)
	}
}
