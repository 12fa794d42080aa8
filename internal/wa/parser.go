package wa

import (
	"strings"

	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/proto/waHistorySync"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// parseLiveMessage normalizes a live message event into a store record.
func parseLiveMessage(evt *events.Message) store.Message {
	return store.Message{
		RemoteJID:        evt.Info.Chat.String(),
		ID:               evt.Info.ID,
		Participant:      evt.Info.Sender.ToNonAD().String(),
		PushName:         evt.Info.PushName,
		FromMe:           evt.Info.IsFromMe,
		MessageType:      detectMessageType(evt.Message),
		Body:             extractTextBody(evt.Message),
		Status:           "received",
		MessageTimestamp: evt.Info.Timestamp.UnixMilli(),
	}
}

// historyToSet flattens a history sync blob into one bulk-sync payload.
// The final chunk of a sync is authoritative.
func historyToSet(data *waHistorySync.HistorySync) engine.HistorySet {
	set := engine.HistorySet{IsLatest: data.GetProgress() >= 100}

	for _, pn := range data.GetPushnames() {
		set.Contacts = append(set.Contacts, store.Contact{
			ID:       pn.GetID(),
			PushName: pn.GetPushname(),
		})
	}

	for _, conv := range data.GetConversations() {
		chatJID := conv.GetID()
		set.Chats = append(set.Chats, store.Chat{
			ID:                    chatJID,
			Name:                  conv.GetName(),
			IsGroup:               strings.HasSuffix(chatJID, "@"+types.GroupServer),
			UnreadCount:           int(conv.GetUnreadCount()),
			ConversationTimestamp: int64(conv.GetConversationTimestamp()),
			Archived:              conv.GetArchived(),
			Pinned:                conv.GetPinned() != 0,
			MuteEndTime:           int64(conv.GetMuteEndTime()),
		})

		for _, hm := range conv.GetMessages() {
			wmsg := hm.GetMessage()
			if wmsg == nil || wmsg.GetMessage() == nil {
				continue
			}
			body := wmsg.GetMessage()
			set.Messages = append(set.Messages, store.Message{
				RemoteJID:        chatJID,
				ID:               wmsg.GetKey().GetID(),
				Participant:      wmsg.GetKey().GetParticipant(),
				FromMe:           wmsg.GetKey().GetFromMe(),
				MessageType:      detectMessageType(body),
				Body:             extractTextBody(body),
				Status:           "received",
				MessageTimestamp: int64(wmsg.GetMessageTimestamp()) * 1000,
			})
		}
	}
	return set
}

// groupFromInfo converts whatsmeow group metadata to a store record.
func groupFromInfo(info *types.GroupInfo) *store.GroupMetadata {
	participants := make([]store.Participant, 0, len(info.Participants))
	for _, p := range info.Participants {
		participants = append(participants, store.Participant{
			ID:           p.JID.ToNonAD().String(),
			IsAdmin:      p.IsAdmin,
			IsSuperAdmin: p.IsSuperAdmin,
		})
	}
	return &store.GroupMetadata{
		ID:           info.JID.String(),
		Subject:      info.Name,
		Owner:        info.OwnerJID.ToNonAD().String(),
		Description:  info.Topic,
		Creation:     info.GroupCreated.Unix(),
		Announce:     info.IsAnnounce,
		Restricted:   info.IsLocked,
		Participants: participants,
	}
}

func extractTextBody(msg *waE2E.Message) string {
	if msg == nil {
		return ""
	}
	if c := msg.GetConversation(); c != "" {
		return c
	}
	if ext := msg.GetExtendedTextMessage(); ext != nil {
		return ext.GetText()
	}
	if img := msg.GetImageMessage(); img != nil {
		return img.GetCaption()
	}
	if vid := msg.GetVideoMessage(); vid != nil {
		return vid.GetCaption()
	}
	return ""
}

func detectMessageType(msg *waE2E.Message) string {
	if msg == nil {
		return "unknown"
	}
	switch {
	case msg.GetConversation() != "" || msg.GetExtendedTextMessage() != nil:
		return "text"
	case msg.GetImageMessage() != nil:
		return "image"
	case msg.GetVideoMessage() != nil:
		return "video"
	case msg.GetAudioMessage() != nil:
		return "audio"
	case msg.GetDocumentMessage() != nil:
		return "document"
	case msg.GetStickerMessage() != nil:
		return "sticker"
	case msg.GetContactMessage() != nil:
		return "contact"
	case msg.GetLocationMessage() != nil:
		return "location"
	case msg.GetReactionMessage() != nil:
		return "reaction"
	default:
		return "unknown"
	}
}
