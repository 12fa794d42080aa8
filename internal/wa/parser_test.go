package wa

import (
	"testing"
	"time"

	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"google.golang.org/protobuf/proto"
)

func TestExtractTextBody(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, ""},
		{"conversation", &waE2E.Message{Conversation: proto.String("hello")}, "hello"},
		{"extended text", &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: proto.String("extended")}}, "extended"},
		{"image caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: proto.String("look")}}, "look"},
		{"image without caption", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, ""},
		{"empty conversation", &waE2E.Message{Conversation: proto.String("")}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := extractTextBody(tt.msg); got != tt.want {
				t.Errorf("extractTextBody() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDetectMessageType(t *testing.T) {
	tests := []struct {
		name string
		msg  *waE2E.Message
		want string
	}{
		{"nil message", nil, "unknown"},
		{"text", &waE2E.Message{Conversation: proto.String("hi")}, "text"},
		{"image", &waE2E.Message{ImageMessage: &waE2E.ImageMessage{}}, "image"},
		{"audio", &waE2E.Message{AudioMessage: &waE2E.AudioMessage{}}, "audio"},
		{"document", &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}, "document"},
		{"sticker", &waE2E.Message{StickerMessage: &waE2E.StickerMessage{}}, "sticker"},
		{"reaction", &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{}}, "reaction"},
		{"empty", &waE2E.Message{}, "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectMessageType(tt.msg); got != tt.want {
				t.Errorf("detectMessageType() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseLiveMessage(t *testing.T) {
	ts := time.Unix(1700000000, 0)
	evt := &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:     types.NewJID("111", types.DefaultUserServer),
				Sender:   types.NewJID("222", types.DefaultUserServer),
				IsFromMe: false,
			},
			ID:        "MSG1",
			PushName:  "Alice",
			Timestamp: ts,
		},
		Message: &waE2E.Message{Conversation: proto.String("hello")},
	}

	m := parseLiveMessage(evt)
	if m.RemoteJID != "111@s.whatsapp.net" {
		t.Errorf("RemoteJID = %q", m.RemoteJID)
	}
	if m.ID != "MSG1" || m.PushName != "Alice" || m.FromMe {
		t.Errorf("unexpected identity fields: %+v", m)
	}
	if m.Body != "hello" || m.MessageType != "text" {
		t.Errorf("Body = %q, MessageType = %q", m.Body, m.MessageType)
	}
	if m.MessageTimestamp != ts.UnixMilli() {
		t.Errorf("MessageTimestamp = %d, want %d", m.MessageTimestamp, ts.UnixMilli())
	}
}

func TestGroupFromInfo(t *testing.T) {
	info := &types.GroupInfo{
		JID:      types.NewJID("grp", types.GroupServer),
		OwnerJID: types.NewJID("111", types.DefaultUserServer),
		GroupName: types.GroupName{
			Name: "Team",
		},
		GroupTopic: types.GroupTopic{
			Topic: "Planning",
		},
		GroupCreated: time.Unix(1600000000, 0),
		Participants: []types.GroupParticipant{
			{JID: types.NewJID("111", types.DefaultUserServer), IsAdmin: true},
			{JID: types.NewJID("222", types.DefaultUserServer)},
		},
	}

	g := groupFromInfo(info)
	if g.ID != "grp@g.us" || g.Subject != "Team" || g.Description != "Planning" {
		t.Errorf("unexpected metadata: %+v", g)
	}
	if g.Creation != 1600000000 {
		t.Errorf("Creation = %d", g.Creation)
	}
	if len(g.Participants) != 2 || !g.Participants[0].IsAdmin || g.Participants[1].IsAdmin {
		t.Errorf("participants = %+v", g.Participants)
	}
}
