package outbox

import (
	"context"
	"fmt"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// mockConn records sends and returns configurable results.
type mockConn struct {
	engine.Conn

	mu    gosync.Mutex
	calls []sendCall
	err   error
	delay time.Duration
}

type sendCall struct {
	JID  string
	Text string
}

func (m *mockConn) SendText(_ context.Context, jid, text string) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, sendCall{JID: jid, Text: text})
	m.mu.Unlock()
	if m.delay > 0 {
		time.Sleep(m.delay)
	}
	if m.err != nil {
		return "", m.err
	}
	return "server-" + jid, nil
}

func (m *mockConn) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type mockResolver struct {
	conns map[string]*mockConn
}

func (r *mockResolver) Conn(sessionID string) (engine.Conn, error) {
	conn, ok := r.conns[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s not found", sessionID)
	}
	return conn, nil
}

type recordingEmitter struct {
	mu     gosync.Mutex
	events []emitted
}

type emitted struct {
	event     string
	sessionID string
	isError   bool
}

func (r *recordingEmitter) Emit(event, sessionID string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, sessionID: sessionID})
}

func (r *recordingEmitter) EmitError(event, sessionID, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{event: event, sessionID: sessionID, isError: true})
}

func (r *recordingEmitter) count(event string, isError bool) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.event == event && e.isError == isError {
			n++
		}
	}
	return n
}

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

func TestSenderProcessesQueuedMessages(t *testing.T) {
	db := testDB(t)
	conn := &mockConn{}
	em := &recordingEmitter{}
	s := NewSender(db, &mockResolver{conns: map[string]*mockConn{"s1": conn}}, em, zap.NewNop())

	clientMsgID, err := s.Queue("s1", "111@s.whatsapp.net", "hello")
	if err != nil {
		t.Fatal(err)
	}
	if clientMsgID == "" {
		t.Fatal("empty client message id")
	}

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return em.count("messages.send", false) == 1 })

	if got := conn.callCount(); got != 1 {
		t.Fatalf("send calls = %d, want 1", got)
	}
	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 after send", len(pending))
	}

	msgs, err := db.ListMessages("s1", "111@s.whatsapp.net", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != "sent" || !msgs[0].FromMe {
		t.Errorf("optimistic message = %+v, want sent from-me record", msgs)
	}
}

func TestSenderHandlesFailure(t *testing.T) {
	db := testDB(t)
	conn := &mockConn{err: fmt.Errorf("network error")}
	em := &recordingEmitter{}
	s := NewSender(db, &mockResolver{conns: map[string]*mockConn{"s1": conn}}, em, zap.NewNop())

	if _, err := s.Queue("s1", "111@s.whatsapp.net", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	waitFor(t, func() bool { return em.count("messages.send", true) == 1 })

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 0 {
		t.Errorf("pending = %d, want 0 (marked failed)", len(pending))
	}
	msgs, err := db.ListMessages("s1", "111@s.whatsapp.net", 0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(msgs) != 1 || msgs[0].Status != "failed" {
		t.Errorf("message after failure = %+v, want failed status", msgs)
	}
}

func TestSenderOptimisticInsert(t *testing.T) {
	db := testDB(t)
	conn := &mockConn{delay: 500 * time.Millisecond}
	em := &recordingEmitter{}
	s := NewSender(db, &mockResolver{conns: map[string]*mockConn{"s1": conn}}, em, zap.NewNop())

	if _, err := s.Queue("s1", "111@s.whatsapp.net", "optimistic"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	defer s.Stop()

	// While the send is still in flight the message row already exists
	// with sending status.
	waitFor(t, func() bool {
		msgs, err := db.ListMessages("s1", "111@s.whatsapp.net", 0, 10)
		return err == nil && len(msgs) == 1 && msgs[0].Status == "sending"
	})

	waitFor(t, func() bool {
		msgs, err := db.ListMessages("s1", "111@s.whatsapp.net", 0, 10)
		return err == nil && len(msgs) == 1 && msgs[0].Status == "sent"
	})
}

func TestSenderLeavesEntryQueuedWithoutSession(t *testing.T) {
	db := testDB(t)
	em := &recordingEmitter{}
	s := NewSender(db, &mockResolver{conns: map[string]*mockConn{}}, em, zap.NewNop())

	if _, err := s.Queue("ghost", "111@s.whatsapp.net", "hello"); err != nil {
		t.Fatal(err)
	}

	s.Start(context.Background())
	time.Sleep(2 * pollInterval)
	s.Stop()

	pending, err := db.PendingOutbox()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Errorf("pending = %d, want 1 (no session to send through)", len(pending))
	}
}
