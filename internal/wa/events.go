package wa

import (
	"encoding/json"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
)

// handleEvent translates whatsmeow events into the engine's event
// vocabulary and publishes them on the session bus. It never calls the
// persistence layer directly; the sync handlers and the state machine
// subscribe independently.
func (c *Conn) handleEvent(rawEvt any) {
	switch evt := rawEvt.(type) {
	case *events.PairSuccess:
		c.handlePairSuccess(evt)
	case *events.Connected:
		c.handleConnected()
	case *events.Disconnected:
		c.publishClose(engine.ReasonTransient, "transport disconnected")
	case *events.StreamReplaced:
		c.publishClose(engine.ReasonRestartRequired, "stream replaced by another connection")
	case *events.LoggedOut:
		c.publishClose(engine.ReasonLoggedOut, evt.Reason.String())
	case *events.Message:
		c.handleMessage(evt)
	case *events.Receipt:
		c.handleReceipt(evt)
	case *events.HistorySync:
		c.handleHistorySync(evt)
	case *events.PushName:
		name := evt.NewPushName
		c.bus.Publish(bus.NewEvent(engine.EventContactsUpdate, []store.ContactPatch{
			{ID: evt.JID.ToNonAD().String(), PushName: &name},
		}))
	case *events.GroupInfo:
		c.handleGroupInfo(evt)
	case *events.JoinedGroup:
		c.bus.Publish(bus.NewEvent(engine.EventGroupsUpsert, []store.GroupMetadata{
			*groupFromInfo(&evt.GroupInfo),
		}))
	case *events.DeleteChat:
		c.bus.Publish(bus.NewEvent(engine.EventChatsDelete, []string{evt.JID.String()}))
	case *events.DeleteForMe:
		c.bus.Publish(bus.NewEvent(engine.EventMessagesDelete, engine.MessagesDelete{
			Keys: []engine.MessageKey{{RemoteJID: evt.ChatJID.String(), ID: evt.MessageID}},
		}))
	case *events.MarkChatAsRead:
		c.handleMarkChatAsRead(evt)
	}
}

// handlePairSuccess records the new device identity as a gateway
// credential record so restart recovery can tell paired sessions apart.
func (c *Conn) handlePairSuccess(evt *events.PairSuccess) {
	c.mu.Lock()
	c.isNewLogin = true
	c.mu.Unlock()

	blob, err := json.Marshal(map[string]string{
		"jid":          evt.ID.String(),
		"platform":     evt.Platform,
		"businessName": evt.BusinessName,
	})
	if err != nil {
		c.logger.Error("error encoding device identity", zap.Error(err))
		return
	}
	c.bus.Publish(bus.NewEvent(engine.EventCredsUpdate, engine.KeyUpdate{ID: "creds", Data: blob}))
}

func (c *Conn) handleConnected() {
	c.mu.Lock()
	isNew := c.isNewLogin
	c.isNewLogin = false
	c.mu.Unlock()

	c.logger.Info("engine connection open", zap.Bool("new_login", isNew))
	c.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
		Phase:      engine.PhaseOpen,
		IsNewLogin: isNew,
	}))
}

func (c *Conn) publishClose(reason engine.CloseReason, message string) {
	c.logger.Info("engine connection closed", zap.String("cause", message))
	c.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
		Phase:   engine.PhaseClose,
		Reason:  reason,
		Message: message,
	}))
}

func (c *Conn) handleMessage(evt *events.Message) {
	if reaction := evt.Message.GetReactionMessage(); reaction != nil {
		c.bus.Publish(bus.NewEvent(engine.EventMessagesReaction, []engine.ReactionUpdate{{
			Key: engine.MessageKey{
				RemoteJID: evt.Info.Chat.String(),
				ID:        reaction.GetKey().GetID(),
			},
			AuthorID:  evt.Info.Sender.ToNonAD().String(),
			Text:      reaction.GetText(),
			Timestamp: reaction.GetSenderTimestampMS(),
		}}))
		return
	}

	c.bus.Publish(bus.NewEvent(engine.EventMessagesUpsert, engine.MessagesUpsert{
		Type:     "notify",
		Messages: []store.Message{parseLiveMessage(evt)},
	}))
}

func (c *Conn) handleReceipt(evt *events.Receipt) {
	receiptType := string(evt.Type)
	if receiptType == "" {
		receiptType = "delivery"
	}
	receipts := make([]store.Receipt, 0, len(evt.MessageIDs))
	for _, id := range evt.MessageIDs {
		receipts = append(receipts, store.Receipt{
			RemoteJID:        evt.Chat.String(),
			MessageID:        id,
			UserJID:          evt.Sender.ToNonAD().String(),
			Type:             receiptType,
			ReceiptTimestamp: evt.Timestamp.UnixMilli(),
		})
	}
	if len(receipts) > 0 {
		c.bus.Publish(bus.NewEvent(engine.EventReceiptUpdate, receipts))
	}
}

func (c *Conn) handleGroupInfo(evt *events.GroupInfo) {
	id := evt.JID.String()

	if evt.Name != nil || evt.Topic != nil {
		patch := store.GroupPatch{ID: id}
		if evt.Name != nil {
			subject := evt.Name.Name
			patch.Subject = &subject
		}
		if evt.Topic != nil {
			topic := evt.Topic.Topic
			patch.Description = &topic
		}
		c.bus.Publish(bus.NewEvent(engine.EventGroupsUpdate, []store.GroupPatch{patch}))
	}
	if evt.Announce != nil {
		announce := evt.Announce.IsAnnounce
		c.bus.Publish(bus.NewEvent(engine.EventGroupsUpdate, []store.GroupPatch{
			{ID: id, Announce: &announce},
		}))
	}

	c.publishParticipants(id, engine.ParticipantAdd, evt.Join)
	c.publishParticipants(id, engine.ParticipantRemove, evt.Leave)
	c.publishParticipants(id, engine.ParticipantPromote, evt.Promote)
	c.publishParticipants(id, engine.ParticipantDemote, evt.Demote)
}

func (c *Conn) publishParticipants(groupID string, action engine.ParticipantAction, jids []types.JID) {
	if len(jids) == 0 {
		return
	}
	ids := make([]string, len(jids))
	for i, j := range jids {
		ids[i] = j.ToNonAD().String()
	}
	c.bus.Publish(bus.NewEvent(engine.EventParticipantsUpdate, engine.ParticipantsUpdate{
		ID:           groupID,
		Action:       action,
		Participants: ids,
	}))
}

func (c *Conn) handleMarkChatAsRead(evt *events.MarkChatAsRead) {
	unread := 1
	if evt.Action.GetRead() {
		unread = 0
	}
	c.bus.Publish(bus.NewEvent(engine.EventChatsUpdate, []store.ChatPatch{
		{ID: evt.JID.String(), UnreadCount: &unread},
	}))
}

func (c *Conn) handleHistorySync(evt *events.HistorySync) {
	data := evt.Data
	if data == nil {
		return
	}

	set := historyToSet(data)
	if len(set.Chats) == 0 && len(set.Contacts) == 0 && len(set.Messages) == 0 {
		return
	}
	c.logger.Info("history sync received",
		zap.Int("chats", len(set.Chats)),
		zap.Int("contacts", len(set.Contacts)),
		zap.Int("messages", len(set.Messages)),
		zap.Bool("latest", set.IsLatest))
	c.bus.Publish(bus.NewEvent(engine.EventHistorySet, set))
}
