package wa

import (
	"testing"
	"time"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.mau.fi/whatsmeow/proto/waCommon"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"
)

func testConn(t *testing.T) (*Conn, *bus.Subscription) {
	t.Helper()
	b := bus.New()
	sub := b.Subscribe("", 16)
	t.Cleanup(sub.Close)
	return &Conn{bus: b, logger: zap.NewNop(), session: "s1"}, sub
}

func recv(t *testing.T, sub *bus.Subscription) bus.Event {
	t.Helper()
	select {
	case evt := <-sub.C:
		return evt
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return bus.Event{}
	}
}

func TestHandleMessagePublishesUpsert(t *testing.T) {
	conn, sub := testConn(t)

	conn.handleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("111", types.DefaultUserServer),
				Sender: types.NewJID("222", types.DefaultUserServer),
			},
			ID:        "MSG1",
			Timestamp: time.Unix(1700000000, 0),
		},
		Message: &waE2E.Message{Conversation: proto.String("hi")},
	})

	evt := recv(t, sub)
	if evt.Kind != engine.EventMessagesUpsert {
		t.Fatalf("kind = %q", evt.Kind)
	}
	up := evt.Payload.(engine.MessagesUpsert)
	if up.Type != "notify" || len(up.Messages) != 1 || up.Messages[0].ID != "MSG1" {
		t.Errorf("payload = %+v", up)
	}
}

func TestHandleMessageDetectsReaction(t *testing.T) {
	conn, sub := testConn(t)

	conn.handleEvent(&events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{
				Chat:   types.NewJID("111", types.DefaultUserServer),
				Sender: types.NewJID("222", types.DefaultUserServer),
			},
			ID: "REACT1",
		},
		Message: &waE2E.Message{
			ReactionMessage: &waE2E.ReactionMessage{
				Key: &waCommon.MessageKey{
					ID:        proto.String("MSG1"),
					RemoteJID: proto.String("111@s.whatsapp.net"),
				},
				Text:              proto.String("👍"),
				SenderTimestampMS: proto.Int64(1700000000000),
			},
		},
	})

	evt := recv(t, sub)
	if evt.Kind != engine.EventMessagesReaction {
		t.Fatalf("kind = %q", evt.Kind)
	}
	reactions := evt.Payload.([]engine.ReactionUpdate)
	if len(reactions) != 1 || reactions[0].Key.ID != "MSG1" || reactions[0].Text != "👍" {
		t.Errorf("payload = %+v", reactions)
	}
}

func TestHandleReceiptFansOutPerMessage(t *testing.T) {
	conn, sub := testConn(t)

	conn.handleEvent(&events.Receipt{
		MessageSource: types.MessageSource{
			Chat:   types.NewJID("111", types.DefaultUserServer),
			Sender: types.NewJID("222", types.DefaultUserServer),
		},
		MessageIDs: []string{"A", "B"},
		Timestamp:  time.Unix(1700000000, 0),
		Type:       types.ReceiptTypeRead,
	})

	evt := recv(t, sub)
	receipts := evt.Payload.([]store.Receipt)
	if len(receipts) != 2 || receipts[0].Type != "read" || receipts[1].MessageID != "B" {
		t.Errorf("payload = %+v", receipts)
	}
}

func TestHandleGroupInfoParticipantChanges(t *testing.T) {
	conn, sub := testConn(t)

	conn.handleEvent(&events.GroupInfo{
		JID:  types.NewJID("grp", types.GroupServer),
		Join: []types.JID{types.NewJID("111", types.DefaultUserServer)},
	})

	evt := recv(t, sub)
	if evt.Kind != engine.EventParticipantsUpdate {
		t.Fatalf("kind = %q", evt.Kind)
	}
	pu := evt.Payload.(engine.ParticipantsUpdate)
	if pu.Action != engine.ParticipantAdd || len(pu.Participants) != 1 {
		t.Errorf("payload = %+v", pu)
	}
}

func TestHandleConnectedReportsNewLoginOnce(t *testing.T) {
	conn, sub := testConn(t)
	conn.isNewLogin = true

	conn.handleEvent(&events.Connected{})
	cu := recv(t, sub).Payload.(engine.ConnectionUpdate)
	if cu.Phase != engine.PhaseOpen || !cu.IsNewLogin {
		t.Errorf("first open = %+v", cu)
	}

	conn.handleEvent(&events.Connected{})
	cu = recv(t, sub).Payload.(engine.ConnectionUpdate)
	if cu.IsNewLogin {
		t.Error("new-login flag must reset after the first open")
	}
}

func TestHandleLoggedOutClassifiesTerminal(t *testing.T) {
	conn, sub := testConn(t)

	conn.handleEvent(&events.LoggedOut{Reason: events.ConnectFailureLoggedOut})
	cu := recv(t, sub).Payload.(engine.ConnectionUpdate)
	if cu.Phase != engine.PhaseClose || cu.Reason != engine.ReasonLoggedOut {
		t.Errorf("payload = %+v", cu)
	}
}
