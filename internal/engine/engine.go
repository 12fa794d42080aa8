// Package engine defines the boundary to the external messaging
// protocol engine. The engine is opaque: given a credential bundle it
// emits a typed stream of lifecycle and data events on the session bus
// and accepts outbound commands through Conn.
package engine

import (
	"context"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/credstore"
	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// Config carries everything an engine implementation needs to
// materialize one session connection.
type Config struct {
	SessionID  string
	ClientName string
	Bus        *bus.Bus
	Creds      *credstore.Scoped
	Logger     *zap.Logger
}

// Dialer creates engine connections. The production implementation is
// the whatsmeow adapter; tests substitute a fake.
type Dialer interface {
	Dial(ctx context.Context, cfg Config) (Conn, error)
}

// Conn is one live engine connection. All commands are asynchronous on
// the engine side and may fail with transport or protocol errors.
type Conn interface {
	// Connect starts the connection attempt. Lifecycle progress arrives
	// as connection.update events on the session bus.
	Connect(ctx context.Context) error
	// Disconnect tears down the transport without invalidating
	// credentials.
	Disconnect()
	// Logout invalidates the session's credentials on the engine side.
	Logout(ctx context.Context) error

	// SendText sends a text message and returns the server message id.
	SendText(ctx context.Context, jid, text string) (string, error)
	// MarkRead marks the given messages in a conversation as read.
	MarkRead(ctx context.Context, remoteJID, sender string, ids []string) error
	// GroupMetadata fetches current metadata for a group.
	GroupMetadata(ctx context.Context, jid string) (*store.GroupMetadata, error)

	// Connected reports the raw transport phase.
	Connected() bool
	// LoggedIn reports whether the engine has an identified user.
	LoggedIn() bool
}
