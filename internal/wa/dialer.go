// Package wa is the production engine adapter backed by whatsmeow. Each
// session gets its own device container database; protocol key material
// is managed by whatsmeow itself, while the gateway-visible credential
// records flow through the session bus as creds.update events.
package wa

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	gosync "sync"
	"time"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/config"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	wastore "go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.uber.org/zap"
	"google.golang.org/protobuf/proto"

	_ "github.com/mattn/go-sqlite3"
)

// Dialer creates whatsmeow-backed engine connections.
type Dialer struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewDialer creates the production dialer.
func NewDialer(cfg *config.Config, logger *zap.Logger) *Dialer {
	return &Dialer{cfg: cfg, logger: logger}
}

// Dial materializes one session connection. The device store lives in a
// per-session sqlite database under the data directory.
func (d *Dialer) Dial(ctx context.Context, ecfg engine.Config) (engine.Conn, error) {
	wastore.SetOSInfo(ecfg.ClientName, [3]uint32{1, 0, 0})

	dbPath := d.cfg.SessionDBPath(ecfg.SessionID)
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("create session dir: %w", err)
	}

	container, err := sqlstore.New(ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=on", dbPath),
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("create device store: %w", err)
	}

	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("get device: %w", err)
	}

	conn := &Conn{
		client:    whatsmeow.NewClient(device, nil),
		container: container,
		bus:       ecfg.Bus,
		logger:    ecfg.Logger,
		session:   ecfg.SessionID,
	}
	conn.client.AddEventHandler(conn.handleEvent)
	return conn, nil
}

// Conn is one live whatsmeow connection implementing engine.Conn.
type Conn struct {
	client    *whatsmeow.Client
	container *sqlstore.Container
	bus       *bus.Bus
	logger    *zap.Logger
	session   string

	mu         gosync.Mutex
	isNewLogin bool
}

// Connect starts the connection. When no device identity exists yet the
// QR channel is pumped onto the session bus as connection.update events
// carrying the pairing code.
func (c *Conn) Connect(ctx context.Context) error {
	if c.client.Store.ID == nil {
		qrChan, err := c.client.GetQRChannel(ctx)
		if err != nil {
			return fmt.Errorf("get qr channel: %w", err)
		}
		go c.pumpQR(qrChan)
	}
	c.logger.Info("connecting to engine")
	return c.client.Connect()
}

func (c *Conn) pumpQR(qrChan <-chan whatsmeow.QRChannelItem) {
	for item := range qrChan {
		switch item.Event {
		case "code":
			c.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
				Phase: engine.PhaseConnecting,
				QR:    item.Code,
			}))
		case "success":
			c.mu.Lock()
			c.isNewLogin = true
			c.mu.Unlock()
			return
		case "timeout":
			c.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
				Phase:   engine.PhaseClose,
				Reason:  engine.ReasonTransient,
				Message: "pairing code timed out",
			}))
			return
		default:
			if item.Error != nil {
				c.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
					Phase:   engine.PhaseClose,
					Reason:  engine.ReasonTransient,
					Message: item.Error.Error(),
				}))
				return
			}
		}
	}
}

// Disconnect terminates the transport and releases the device store.
func (c *Conn) Disconnect() {
	c.client.Disconnect()
	_ = c.container.Close()
}

// Logout invalidates the device identity on the engine side.
func (c *Conn) Logout(ctx context.Context) error {
	return c.client.Logout(ctx)
}

// SendText sends a plain text message and returns the server message
// id.
func (c *Conn) SendText(ctx context.Context, jid, text string) (string, error) {
	to, err := types.ParseJID(jid)
	if err != nil {
		return "", fmt.Errorf("parse jid: %w", err)
	}
	resp, err := c.client.SendMessage(ctx, to, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return resp.ID, nil
}

// MarkRead marks messages in a conversation as read.
func (c *Conn) MarkRead(ctx context.Context, remoteJID, sender string, ids []string) error {
	chat, err := types.ParseJID(remoteJID)
	if err != nil {
		return fmt.Errorf("parse jid: %w", err)
	}
	senderJID := types.EmptyJID
	if sender != "" {
		if senderJID, err = types.ParseJID(sender); err != nil {
			return fmt.Errorf("parse sender jid: %w", err)
		}
	}
	msgIDs := make([]types.MessageID, len(ids))
	for i, id := range ids {
		msgIDs[i] = types.MessageID(id)
	}
	return c.client.MarkRead(ctx, msgIDs, time.Now(), chat, senderJID)
}

// GroupMetadata fetches the current metadata of a group.
func (c *Conn) GroupMetadata(ctx context.Context, jid string) (*store.GroupMetadata, error) {
	gjid, err := types.ParseJID(jid)
	if err != nil {
		return nil, fmt.Errorf("parse jid: %w", err)
	}
	info, err := c.client.GetGroupInfo(ctx, gjid)
	if err != nil {
		return nil, fmt.Errorf("get group info: %w", err)
	}
	return groupFromInfo(info), nil
}

// Connected reports the raw transport phase.
func (c *Conn) Connected() bool {
	return c.client.IsConnected()
}

// LoggedIn reports whether a device identity exists.
func (c *Conn) LoggedIn() bool {
	return c.client.Store.ID != nil
}
