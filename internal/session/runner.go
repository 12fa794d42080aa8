package session

import (
	"context"
	"fmt"
	gosync "sync"
	"time"

	"github.com/matheus3301/wagate/internal/bus"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/sync"
	"go.uber.org/zap"
)

// markReadDelay is how long a live inbound message sits before it is
// marked read when the session opts in.
const markReadDelay = 2 * time.Second

// runner drives one session's connection state machine. It owns the
// session bus, the engine connection, the sync handler registry and the
// reconnect timer.
type runner struct {
	id     string
	opts   Options
	mgr    *Manager
	logger *zap.Logger

	bus      *bus.Bus
	registry *sync.Registry
	qrCh     chan string

	lifecycle *bus.Subscription
	quit      chan struct{}
	done      chan struct{}

	mu          gosync.Mutex
	conn        engine.Conn
	status      Status
	retries     int
	qrGens      int
	qrDelivered bool
	retryTimer  *time.Timer
	tornDown    bool
}

func newRunner(m *Manager, sessionID string, opts Options) *runner {
	qrBuf := 1
	if opts.Streamed {
		qrBuf = m.cfg.MaxQRGenerations
	}
	b := bus.New()
	return &runner{
		id:       sessionID,
		opts:     opts,
		mgr:      m,
		logger:   m.logger.With(zap.String("session", sessionID)),
		bus:      b,
		registry: sync.NewRegistry(sessionID, m.db, b, m.emitter, m.logger),
		qrCh:     make(chan string, qrBuf),
		status:   StatusUnknown,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// start attaches the sync handlers, begins consuming lifecycle events
// and asks the engine to connect. Pairing progress arrives
// asynchronously on the session bus.
func (r *runner) start(ctx context.Context) error {
	r.registry.Attach()
	r.lifecycle = r.bus.Subscribe("", 64)
	go r.loop()
	return r.dial(ctx)
}

func (r *runner) dial(ctx context.Context) error {
	conn, err := r.mgr.dialer.Dial(ctx, engine.Config{
		SessionID:  r.id,
		ClientName: r.mgr.cfg.BotName,
		Bus:        r.bus,
		Creds:      r.mgr.creds.ForSession(r.id),
		Logger:     r.logger,
	})
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()
	return conn.Connect(ctx)
}

func (r *runner) engineConn() engine.Conn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *runner) currentStatus() Status {
	r.mu.Lock()
	explicit, conn := r.status, r.conn
	r.mu.Unlock()
	return deriveStatus(explicit, conn)
}

func (r *runner) loop() {
	defer close(r.done)
	for {
		select {
		case evt := <-r.lifecycle.C:
			r.handle(evt)
		case <-r.quit:
			return
		}
	}
}

func (r *runner) handle(evt bus.Event) {
	switch evt.Kind {
	case engine.EventConnectionUpdate:
		if cu, ok := evt.Payload.(engine.ConnectionUpdate); ok {
			r.handleConnectionUpdate(cu)
		}
	case engine.EventCredsUpdate:
		if ku, ok := evt.Payload.(engine.KeyUpdate); ok {
			r.handleKeyUpdate(ku)
		}
	case engine.EventHistorySet:
		if hs, ok := evt.Payload.(engine.HistorySet); ok {
			r.handleHistoryProgress(hs)
		}
	case engine.EventMessagesUpsert:
		if up, ok := evt.Payload.(engine.MessagesUpsert); ok && r.opts.ReadIncomingMessages {
			r.readIncoming(up)
		}
	}
}

func (r *runner) handleConnectionUpdate(cu engine.ConnectionUpdate) {
	if cu.QR != "" {
		r.handleQR(cu.QR)
	}

	switch cu.Phase {
	case engine.PhaseOpen:
		r.mu.Lock()
		r.retries = 0
		r.qrGens = 0
		r.mu.Unlock()
		if cu.IsNewLogin {
			r.setStatus(StatusAuthenticated, "")
		} else {
			r.setStatus(StatusConnected, "")
		}
	case engine.PhaseClose:
		r.handleClose(cu)
	}
}

func (r *runner) handleQR(code string) {
	r.mu.Lock()
	if r.tornDown {
		r.mu.Unlock()
		return
	}
	if r.opts.Streamed {
		if r.qrGens >= r.mgr.cfg.MaxQRGenerations {
			r.mu.Unlock()
			r.logger.Info("qr generation limit reached, destroying session")
			r.destroy("qr generation limit reached")
			return
		}
		r.qrGens++
	} else {
		if r.qrDelivered {
			r.mu.Unlock()
			r.logger.Info("pairing challenge expired unconsumed, destroying session")
			r.destroy("pairing not completed")
			return
		}
		r.qrDelivered = true
	}
	r.mu.Unlock()

	dataURL, err := renderQR(code)
	if err != nil {
		r.logger.Error("error rendering qr code", zap.Error(err))
		r.mgr.emitter.EmitError("qrcode.updated", r.id, fmt.Sprintf("error rendering qr code: %v", err))
		r.destroy("error rendering qr code")
		return
	}

	select {
	case r.qrCh <- dataURL:
	default:
	}
	r.setStatus(StatusWaitForQRAuth, "")
	r.mgr.emitter.Emit("qrcode.updated", r.id, map[string]string{"qrcode": dataURL})
}

func (r *runner) handleClose(cu engine.ConnectionUpdate) {
	// The transport is down whatever happens next; report it before any
	// retry is scheduled so consumers never see a stale connected state.
	r.setStatus(StatusDisconnected, cu.Message)

	switch cu.Reason {
	case engine.ReasonLoggedOut:
		r.logger.Info("session logged out")
		r.destroy("logged out")
	case engine.ReasonRestartRequired:
		r.logger.Info("engine requested restart, reconnecting")
		r.scheduleReconnect(0)
	default:
		r.mu.Lock()
		if r.retries >= r.mgr.cfg.MaxReconnectRetries {
			r.mu.Unlock()
			r.logger.Warn("reconnect budget exhausted, destroying session",
				zap.Int("retries", r.mgr.cfg.MaxReconnectRetries))
			r.destroy("reconnect budget exhausted")
			return
		}
		r.retries++
		attempt := r.retries
		r.mu.Unlock()
		r.logger.Info("connection closed, scheduling reconnect",
			zap.Int("attempt", attempt), zap.String("cause", cu.Message))
		r.scheduleReconnect(time.Duration(r.mgr.cfg.ReconnectInterval) * time.Second)
	}
}

// scheduleReconnect arms the cancellable retry timer. No lock is held
// across the delay; teardown stops the timer.
func (r *runner) scheduleReconnect(delay time.Duration) {
	r.mu.Lock()
	if r.tornDown {
		r.mu.Unlock()
		return
	}
	if r.retryTimer != nil {
		r.retryTimer.Stop()
	}
	r.retryTimer = time.AfterFunc(delay, r.reconnect)
	r.mu.Unlock()
}

func (r *runner) reconnect() {
	r.mu.Lock()
	if r.tornDown {
		r.mu.Unlock()
		return
	}
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		conn.Disconnect()
	}
	if err := r.dial(context.Background()); err != nil {
		r.logger.Error("error reconnecting", zap.Error(err))
		// Feed the failure back through close handling so the retry
		// budget keeps counting.
		r.bus.Publish(bus.NewEvent(engine.EventConnectionUpdate, engine.ConnectionUpdate{
			Phase:   engine.PhaseClose,
			Reason:  engine.ReasonTransient,
			Message: err.Error(),
		}))
	}
}

// handleHistoryProgress tracks the initial data pull after a fresh
// pairing: the session reports pulling_wa_data until the engine flags
// the final history chunk.
func (r *runner) handleHistoryProgress(hs engine.HistorySet) {
	r.mu.Lock()
	syncing := r.status == StatusAuthenticated || r.status == StatusPullingData
	r.mu.Unlock()
	if !syncing {
		return
	}
	if hs.IsLatest {
		r.setStatus(StatusConnected, "")
	} else {
		r.setStatus(StatusPullingData, "")
	}
}

func (r *runner) handleKeyUpdate(ku engine.KeyUpdate) {
	creds := r.mgr.creds.ForSession(r.id)
	var err error
	if ku.Data == nil {
		err = creds.Delete(ku.ID)
	} else {
		err = creds.Write(ku.ID, ku.Data)
	}
	if err != nil {
		r.logger.Error("error persisting credential record", zap.Error(err), zap.String("id", ku.ID))
	}
}

func (r *runner) readIncoming(up engine.MessagesUpsert) {
	if up.Type != "notify" {
		return
	}
	conn := r.engineConn()
	if conn == nil {
		return
	}
	for _, m := range up.Messages {
		if m.FromMe {
			continue
		}
		jid, sender, id := m.RemoteJID, m.Participant, m.ID
		time.AfterFunc(markReadDelay, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := conn.MarkRead(ctx, jid, sender, []string{id}); err != nil {
				r.logger.Warn("error marking message read", zap.Error(err), zap.String("id", id))
			}
		})
	}
}

// setStatus records a status transition and broadcasts it as a
// connection.update event.
func (r *runner) setStatus(s Status, message string) {
	r.mu.Lock()
	if r.status == s {
		r.mu.Unlock()
		return
	}
	r.status = s
	r.mu.Unlock()

	r.logger.Info("connection status changed", zap.String("status", string(s)))
	data := map[string]string{"status": string(s)}
	if message != "" {
		data["message"] = message
	}
	r.mgr.emitter.Emit("connection.update", r.id, data)
}

// destroy removes the session through the manager. It runs on a fresh
// goroutine so it can be called from the lifecycle loop.
func (r *runner) destroy(reason string) {
	r.setStatus(StatusDisconnected, reason)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := r.mgr.Delete(ctx, r.id); err != nil {
			r.logger.Error("error destroying session", zap.Error(err))
		}
	}()
}

// teardown stops the runner. Idempotent and safe to call while the
// state machine is mid-transition.
func (r *runner) teardown(ctx context.Context, logout bool) {
	r.mu.Lock()
	if r.tornDown {
		r.mu.Unlock()
		return
	}
	r.tornDown = true
	if r.retryTimer != nil {
		r.retryTimer.Stop()
	}
	conn := r.conn
	r.mu.Unlock()

	if conn != nil {
		if logout && conn.LoggedIn() {
			if err := conn.Logout(ctx); err != nil {
				r.logger.Warn("error logging out", zap.Error(err))
			}
		}
		conn.Disconnect()
	}

	r.lifecycle.Close()
	close(r.quit)
	<-r.done
	close(r.qrCh)
	r.registry.Detach()

	r.setStatus(StatusDisconnected, "")
}
