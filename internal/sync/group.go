package sync

import (
	"fmt"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/lock"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// GroupHandler reconciles group metadata and participant events into
// the group_metadata table.
type GroupHandler struct {
	sessionID string
	db        *store.DB
	bus       *bus.Bus
	emitter   Emitter
	logger    *zap.Logger
	locks     *lock.Keyed
	sub       subscriber
}

// NewGroupHandler creates a group handler for one session.
func NewGroupHandler(sessionID string, db *store.DB, b *bus.Bus, emitter Emitter, logger *zap.Logger, locks *lock.Keyed) *GroupHandler {
	return &GroupHandler{sessionID: sessionID, db: db, bus: b, emitter: emitter, logger: logger, locks: locks}
}

// Attach subscribes to the session's event feed. Idempotent.
func (h *GroupHandler) Attach() { h.sub.attach(h.bus, h.handle) }

// Detach unsubscribes. Idempotent.
func (h *GroupHandler) Detach() { h.sub.detach() }

func (h *GroupHandler) handle(evt bus.Event) {
	switch evt.Kind {
	case engine.EventGroupsUpsert:
		if groups, ok := evt.Payload.([]store.GroupMetadata); ok {
			h.upsert(groups)
		}
	case engine.EventGroupsUpdate:
		if patches, ok := evt.Payload.([]store.GroupPatch); ok {
			h.update(patches)
		}
	case engine.EventParticipantsUpdate:
		if pu, ok := evt.Payload.(engine.ParticipantsUpdate); ok {
			h.updateParticipants(pu)
		}
	}
}

func (h *GroupHandler) upsert(groups []store.GroupMetadata) {
	applied, errs := fanOut(groups, func(g store.GroupMetadata) error {
		g.SessionID = h.sessionID
		return h.db.UpsertGroup(&g)
	})
	for _, err := range errs {
		h.logger.Error("an error occurred during groups upsert", zap.Error(err))
	}
	if len(applied) > 0 {
		h.emitter.Emit("groups.upsert", h.sessionID, map[string]any{"groups": applied})
	} else if len(groups) > 0 {
		h.emitter.EmitError("groups.upsert", h.sessionID, fmt.Sprintf("an error occurred during groups upsert: %v", errs[0]))
	}
}

func (h *GroupHandler) update(patches []store.GroupPatch) {
	for i := range patches {
		p := &patches[i]
		found, err := h.db.UpdateGroup(h.sessionID, p)
		if err != nil {
			h.logger.Error("an error occurred during group metadata update", zap.Error(err), zap.String("id", p.ID))
			h.emitter.EmitError("groups.update", h.sessionID, fmt.Sprintf("an error occurred during group metadata update: %v", err))
			continue
		}
		if !found {
			h.logger.Info("got metadata update for non existent group", zap.String("id", p.ID))
			continue
		}
		h.emitter.Emit("groups.update", h.sessionID, p)
	}
}

// updateParticipants applies a participant mutation under a lock keyed
// by (session, group): the read-then-write cycle must not interleave
// with itself for the same group.
func (h *GroupHandler) updateParticipants(pu engine.ParticipantsUpdate) {
	release := h.locks.Lock(h.sessionID + "/" + pu.ID)
	defer release()

	group, err := h.db.GetGroup(h.sessionID, pu.ID)
	if err != nil {
		h.logger.Error("an error occurred during group participants update", zap.Error(err), zap.String("id", pu.ID))
		h.emitter.EmitError("group-participants.update", h.sessionID, fmt.Sprintf("an error occurred during group participants update: %v", err))
		return
	}
	if group == nil {
		h.logger.Info("got participants update for non existent group", zap.String("id", pu.ID))
		return
	}

	listed := make(map[string]bool, len(pu.Participants))
	for _, p := range pu.Participants {
		listed[p] = true
	}

	participants := group.Participants
	switch pu.Action {
	case engine.ParticipantAdd:
		present := make(map[string]bool, len(participants))
		for _, p := range participants {
			present[p.ID] = true
		}
		for _, id := range pu.Participants {
			if !present[id] {
				participants = append(participants, store.Participant{ID: id})
			}
		}
	case engine.ParticipantPromote, engine.ParticipantDemote:
		for i := range participants {
			if listed[participants[i].ID] {
				participants[i].IsAdmin = pu.Action == engine.ParticipantPromote
			}
		}
	case engine.ParticipantRemove:
		kept := participants[:0]
		for _, p := range participants {
			if !listed[p.ID] {
				kept = append(kept, p)
			}
		}
		participants = kept
	}

	if _, err := h.db.SetGroupParticipants(h.sessionID, pu.ID, participants); err != nil {
		h.logger.Error("an error occurred during group participants update", zap.Error(err), zap.String("id", pu.ID))
		h.emitter.EmitError("group-participants.update", h.sessionID, fmt.Sprintf("an error occurred during group participants update: %v", err))
		return
	}
	h.emitter.Emit("group-participants.update", h.sessionID, pu)
}
