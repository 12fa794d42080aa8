package store

import (
	"path/filepath"
	"testing"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 {
		t.Errorf("version = %d, want 1", result.Version)
	}
}

func TestChatUpsertUniquePerSession(t *testing.T) {
	db := testDB(t)

	chat := &Chat{SessionID: "s1", ID: "123@s.whatsapp.net", Name: "Alice"}
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	chat.Name = "Alice Updated"
	if err := db.UpsertChat(chat); err != nil {
		t.Fatal(err)
	}
	// Same natural id under another session is a distinct record.
	if err := db.UpsertChat(&Chat{SessionID: "s2", ID: "123@s.whatsapp.net", Name: "Other"}); err != nil {
		t.Fatal(err)
	}

	chats, err := db.ListChats("s1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 {
		t.Fatalf("got %d chats for s1, want 1", len(chats))
	}
	if chats[0].Name != "Alice Updated" {
		t.Errorf("name = %q, want Alice Updated", chats[0].Name)
	}
}

func TestCreateChatsReplaceIdempotent(t *testing.T) {
	db := testDB(t)

	batch := []Chat{{ID: "a@s"}, {ID: "b@s"}, {ID: "c@s"}}
	added, err := db.CreateChats("s1", batch, true)
	if err != nil {
		t.Fatal(err)
	}
	if added != 3 {
		t.Errorf("added = %d, want 3", added)
	}

	// Redelivery of the identical authoritative batch yields the same set.
	if _, err := db.CreateChats("s1", batch, true); err != nil {
		t.Fatal(err)
	}
	chats, err := db.ListChats("s1", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 3 {
		t.Errorf("got %d chats after redelivery, want 3", len(chats))
	}
}

func TestCreateChatsNonAuthoritativeSkipsExisting(t *testing.T) {
	db := testDB(t)

	if _, err := db.CreateChats("s1", []Chat{{ID: "a@s", Name: "kept"}}, false); err != nil {
		t.Fatal(err)
	}
	added, err := db.CreateChats("s1", []Chat{{ID: "a@s", Name: "clobbered"}, {ID: "b@s"}}, false)
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d, want 1", added)
	}

	chats, _ := db.ListChats("s1", 0, 10)
	if chats[0].Name != "kept" {
		t.Errorf("existing chat was overwritten: name = %q", chats[0].Name)
	}
}

func TestUpdateChatMissingIsNotError(t *testing.T) {
	db := testDB(t)

	name := "ghost"
	found, err := db.UpdateChat("s1", &ChatPatch{ID: "missing@s", Name: &name})
	if err != nil {
		t.Fatalf("UpdateChat() error = %v", err)
	}
	if found {
		t.Error("found = true for missing chat")
	}
	chats, _ := db.ListChats("s1", 0, 10)
	if len(chats) != 0 {
		t.Error("update of missing chat must not create a record")
	}
}

func TestUpdateChatUnreadCountDeltaRule(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertChat(&Chat{SessionID: "s1", ID: "a@s", UnreadCount: 2}); err != nil {
		t.Fatal(err)
	}

	inc := 3
	if _, err := db.UpdateChat("s1", &ChatPatch{ID: "a@s", UnreadCount: &inc}); err != nil {
		t.Fatal(err)
	}
	chats, _ := db.ListChats("s1", 0, 10)
	if chats[0].UnreadCount != 5 {
		t.Errorf("unread = %d after increment, want 5", chats[0].UnreadCount)
	}

	zero := 0
	if _, err := db.UpdateChat("s1", &ChatPatch{ID: "a@s", UnreadCount: &zero}); err != nil {
		t.Fatal(err)
	}
	chats, _ = db.ListChats("s1", 0, 10)
	if chats[0].UnreadCount != 0 {
		t.Errorf("unread = %d after set, want 0", chats[0].UnreadCount)
	}
}

func TestDeleteChatsByIDSet(t *testing.T) {
	db := testDB(t)

	for _, id := range []string{"a@s", "b@s", "c@s"} {
		if err := db.UpsertChat(&Chat{SessionID: "s1", ID: id}); err != nil {
			t.Fatal(err)
		}
	}
	if err := db.DeleteChats("s1", []string{"a@s", "c@s"}); err != nil {
		t.Fatal(err)
	}
	chats, _ := db.ListChats("s1", 0, 10)
	if len(chats) != 1 || chats[0].ID != "b@s" {
		t.Errorf("remaining chats = %v, want only b@s", chats)
	}
}

func TestCreateContactsSkipsDuplicates(t *testing.T) {
	db := testDB(t)

	added, err := db.CreateContacts("s1", []Contact{{ID: "a@s"}, {ID: "b@s"}})
	if err != nil {
		t.Fatal(err)
	}
	if added != 2 {
		t.Errorf("added = %d, want 2", added)
	}
	added, err = db.CreateContacts("s1", []Contact{{ID: "a@s"}, {ID: "c@s"}})
	if err != nil {
		t.Fatal(err)
	}
	if added != 1 {
		t.Errorf("added = %d on redelivery, want 1", added)
	}
}

func TestUpsertContactKeepsNonEmptyNames(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertContact(&Contact{SessionID: "s1", ID: "a@s", Name: "Alice"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertContact(&Contact{SessionID: "s1", ID: "a@s", PushName: "Ali"}); err != nil {
		t.Fatal(err)
	}
	c, err := db.GetContact("s1", "a@s")
	if err != nil {
		t.Fatal(err)
	}
	if c.Name != "Alice" || c.PushName != "Ali" {
		t.Errorf("contact = %+v, want merged names", c)
	}
}

func TestMessageConversationScopedDelete(t *testing.T) {
	db := testDB(t)

	msgs := []Message{
		{SessionID: "s1", RemoteJID: "x@g.us", ID: "m1"},
		{SessionID: "s1", RemoteJID: "x@g.us", ID: "m2"},
		{SessionID: "s1", RemoteJID: "y@g.us", ID: "m3"},
	}
	for i := range msgs {
		if err := db.UpsertMessage(&msgs[i]); err != nil {
			t.Fatal(err)
		}
	}

	if err := db.DeleteConversation("s1", "x@g.us"); err != nil {
		t.Fatal(err)
	}

	left, _ := db.ListMessages("s1", "x@g.us", 0, 10)
	if len(left) != 0 {
		t.Errorf("conversation x still has %d messages", len(left))
	}
	other, _ := db.ListMessages("s1", "y@g.us", 0, 10)
	if len(other) != 1 {
		t.Errorf("conversation y has %d messages, want 1 untouched", len(other))
	}
}

func TestUpdateMessageMissingIsNotError(t *testing.T) {
	db := testDB(t)

	status := "read"
	found, err := db.UpdateMessage("s1", &MessagePatch{RemoteJID: "x@s", ID: "nope", Status: &status})
	if err != nil {
		t.Fatalf("UpdateMessage() error = %v", err)
	}
	if found {
		t.Error("found = true for missing message")
	}
}

func TestReceiptReplacesSameParticipant(t *testing.T) {
	db := testDB(t)

	if err := db.UpsertMessage(&Message{SessionID: "s1", RemoteJID: "x@g.us", ID: "m1"}); err != nil {
		t.Fatal(err)
	}

	r := &Receipt{RemoteJID: "x@g.us", MessageID: "m1", UserJID: "u1@s", Type: "delivery", ReceiptTimestamp: 100}
	if err := db.UpsertReceipt("s1", r); err != nil {
		t.Fatal(err)
	}
	r.Type = "read"
	r.ReceiptTimestamp = 200
	if err := db.UpsertReceipt("s1", r); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertReceipt("s1", &Receipt{RemoteJID: "x@g.us", MessageID: "m1", UserJID: "u2@s", Type: "delivery"}); err != nil {
		t.Fatal(err)
	}

	receipts, err := db.ListReceipts("s1", "x@g.us", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(receipts) != 2 {
		t.Fatalf("got %d receipts, want 2", len(receipts))
	}
	if receipts[0].UserJID != "u1@s" || receipts[0].Type != "read" {
		t.Errorf("u1 receipt = %+v, want replaced read receipt", receipts[0])
	}
}

func TestReactionLatestWinsAndEmptyRemoves(t *testing.T) {
	db := testDB(t)

	set := func(author, text string) {
		t.Helper()
		if err := db.SetReaction("s1", &Reaction{RemoteJID: "x@s", MessageID: "m1", AuthorID: author, Text: text}); err != nil {
			t.Fatal(err)
		}
	}

	set("a@s", "👍")
	set("b@s", "❤️")
	set("a@s", "😂") // replaces a's prior reaction

	reactions, err := db.ListReactions("s1", "x@s", "m1")
	if err != nil {
		t.Fatal(err)
	}
	if len(reactions) != 2 {
		t.Fatalf("got %d reactions, want 2", len(reactions))
	}
	for _, r := range reactions {
		if r.AuthorID == "a@s" && r.Text != "😂" {
			t.Errorf("a's reaction = %q, want 😂", r.Text)
		}
	}

	set("a@s", "") // removal
	reactions, _ = db.ListReactions("s1", "x@s", "m1")
	if len(reactions) != 1 || reactions[0].AuthorID != "b@s" {
		t.Errorf("reactions after removal = %v, want only b@s", reactions)
	}
}

func TestGroupParticipantsRoundTrip(t *testing.T) {
	db := testDB(t)

	g := &GroupMetadata{
		SessionID:    "s1",
		ID:           "g1@g.us",
		Subject:      "Team",
		Participants: []Participant{{ID: "a@s", IsAdmin: true}, {ID: "b@s"}},
	}
	if err := db.UpsertGroup(g); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetGroup("s1", "g1@g.us")
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || len(got.Participants) != 2 || !got.Participants[0].IsAdmin {
		t.Errorf("group = %+v, want 2 participants with a@s admin", got)
	}

	ok, err := db.SetGroupParticipants("s1", "g1@g.us", []Participant{{ID: "b@s"}})
	if err != nil || !ok {
		t.Fatalf("SetGroupParticipants() ok=%v err=%v", ok, err)
	}
	got, _ = db.GetGroup("s1", "g1@g.us")
	if len(got.Participants) != 1 || got.Participants[0].ID != "b@s" {
		t.Errorf("participants = %v, want only b@s", got.Participants)
	}

	ok, err = db.SetGroupParticipants("s1", "missing@g.us", nil)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("ok = true for missing group")
	}
}

func TestSessionRecords(t *testing.T) {
	db := testDB(t)

	if err := db.PutSessionRecord("s1", "creds", []byte("blob-1")); err != nil {
		t.Fatal(err)
	}
	if err := db.PutSessionRecord("s1", "creds", []byte("blob-2")); err != nil {
		t.Fatal(err)
	}
	data, err := db.GetSessionRecord("s1", "creds")
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "blob-2" {
		t.Errorf("data = %q, want rotated blob-2", data)
	}

	// Absent reads return nil, not an error.
	data, err = db.GetSessionRecord("s1", "absent")
	if err != nil {
		t.Fatal(err)
	}
	if data != nil {
		t.Errorf("data = %v for absent record, want nil", data)
	}

	if err := db.DeleteSessionRecord("s1", "creds"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteSessionRecord("s1", "creds"); err != nil {
		t.Errorf("second delete errored: %v", err)
	}
}

func TestListSessionRecordsByPrefix(t *testing.T) {
	db := testDB(t)

	_ = db.PutSessionRecord("s1", "session-config-s1", []byte("{}"))
	_ = db.PutSessionRecord("s2", "session-config-s2", []byte("{}"))
	_ = db.PutSessionRecord("s1", "pre-key-1", []byte("k"))

	records, err := db.ListSessionRecordsByPrefix("session-config")
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 {
		t.Errorf("got %d config records, want 2", len(records))
	}
}

func TestDeleteSessionDataCascades(t *testing.T) {
	db := testDB(t)

	_ = db.UpsertChat(&Chat{SessionID: "s1", ID: "a@s"})
	_ = db.UpsertContact(&Contact{SessionID: "s1", ID: "a@s"})
	_ = db.UpsertMessage(&Message{SessionID: "s1", RemoteJID: "a@s", ID: "m1"})
	_ = db.UpsertReceipt("s1", &Receipt{RemoteJID: "a@s", MessageID: "m1", UserJID: "u@s"})
	_ = db.UpsertGroup(&GroupMetadata{SessionID: "s1", ID: "g@g.us"})
	_ = db.PutSessionRecord("s1", "creds", []byte("x"))
	_ = db.UpsertChat(&Chat{SessionID: "s2", ID: "b@s"})

	if err := db.DeleteSessionData("s1"); err != nil {
		t.Fatal(err)
	}

	for _, q := range []string{"chats", "contacts", "messages", "message_receipts", "group_metadata", "sessions"} {
		var count int
		if err := db.QueryRow(`SELECT COUNT(*) FROM ` + q + ` WHERE session_id = 's1'`).Scan(&count); err != nil {
			t.Fatal(err)
		}
		if count != 0 {
			t.Errorf("%s still has %d rows for s1", q, count)
		}
	}

	// Other sessions untouched.
	chats, _ := db.ListChats("s2", 0, 10)
	if len(chats) != 1 {
		t.Error("cascade touched another session's records")
	}
}

func TestOutboxLifecycle(t *testing.T) {
	db := testDB(t)

	if err := db.QueueOutbox("s1", "cid-1", "x@s", "hello"); err != nil {
		t.Fatal(err)
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 || pending[0].SessionID != "s1" {
		t.Fatalf("pending = %v, want one s1 entry", pending)
	}

	if err := db.MarkOutboxSent("cid-1", "srv-1"); err != nil {
		t.Fatal(err)
	}
	pending, _ = db.PendingOutbox()
	if len(pending) != 0 {
		t.Error("sent entry still pending")
	}
}
