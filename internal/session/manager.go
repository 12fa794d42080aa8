package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	gosync "sync"

	"github.com/matheus3301/wagate/internal/config"
	"github.com/matheus3301/wagate/internal/credstore"
	"github.com/matheus3301/wagate/internal/engine"
	"github.com/matheus3301/wagate/internal/store"
	"github.com/matheus3301/wagate/internal/sync"
	"go.uber.org/zap"
)

// Manager owns the registry of active sessions. At most one runner
// exists per session id; reconnection never creates a second concurrent
// engine connection for the same id.
type Manager struct {
	cfg     *config.Config
	db      *store.DB
	creds   *credstore.Store
	dialer  engine.Dialer
	emitter sync.Emitter
	logger  *zap.Logger

	mu      gosync.Mutex
	runners map[string]*runner
}

// NewManager creates an empty session manager.
func NewManager(cfg *config.Config, db *store.DB, creds *credstore.Store, dialer engine.Dialer, emitter sync.Emitter, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:     cfg,
		db:      db,
		creds:   creds,
		dialer:  dialer,
		emitter: emitter,
		logger:  logger,
		runners: make(map[string]*runner),
	}
}

// Create registers a new session and starts its connection state
// machine. It fails with ErrSessionExists when the id is already
// registered. The call does not block on pairing: callers consume the
// challenge through the returned Pairing.
func (m *Manager) Create(ctx context.Context, sessionID string, opts Options) (*Pairing, error) {
	if err := ValidateName(sessionID); err != nil {
		return nil, err
	}
	// The daemon-wide read-receipt flag turns the behavior on for every
	// session; per-session options can only add to it.
	opts.ReadIncomingMessages = opts.ReadIncomingMessages || m.cfg.ReadIncomingMessages

	m.mu.Lock()
	if _, ok := m.runners[sessionID]; ok {
		m.mu.Unlock()
		return nil, ErrSessionExists
	}
	r := newRunner(m, sessionID, opts)
	m.runners[sessionID] = r
	m.mu.Unlock()

	blob, err := json.Marshal(opts)
	if err == nil {
		err = m.creds.ForSession(sessionID).Write(m.configRecordID(sessionID), blob)
	}
	if err != nil {
		m.remove(sessionID)
		return nil, fmt.Errorf("persist session config: %w", err)
	}

	if err := r.start(ctx); err != nil {
		m.remove(sessionID)
		r.teardown(ctx, false)
		_ = m.db.DeleteSessionData(sessionID)
		return nil, fmt.Errorf("start session: %w", err)
	}

	m.logger.Info("session created", zap.String("session", sessionID), zap.Bool("streamed", opts.Streamed))
	return &Pairing{QR: r.qrCh}, nil
}

// Get returns the session's info.
func (m *Manager) Get(sessionID string) (Info, error) {
	m.mu.Lock()
	r, ok := m.runners[sessionID]
	m.mu.Unlock()
	if !ok {
		return Info{}, ErrSessionNotFound
	}
	return Info{ID: sessionID, Status: r.currentStatus()}, nil
}

// Exists reports whether the id is registered.
func (m *Manager) Exists(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.runners[sessionID]
	return ok
}

// Status returns the session's derived connection status.
func (m *Manager) Status(sessionID string) (Status, error) {
	info, err := m.Get(sessionID)
	if err != nil {
		return StatusUnknown, err
	}
	return info.Status, nil
}

// List returns a snapshot of every registered session and its status,
// sorted by id. No lock is held while statuses are derived.
func (m *Manager) List() []Info {
	m.mu.Lock()
	snapshot := make(map[string]*runner, len(m.runners))
	for id, r := range m.runners {
		snapshot[id] = r
	}
	m.mu.Unlock()

	infos := make([]Info, 0, len(snapshot))
	for id, r := range snapshot {
		infos = append(infos, Info{ID: id, Status: r.currentStatus()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].ID < infos[j].ID })
	return infos
}

// Conn returns the session's live engine connection for outbound
// commands.
func (m *Manager) Conn(sessionID string) (engine.Conn, error) {
	m.mu.Lock()
	r, ok := m.runners[sessionID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	conn := r.engineConn()
	if conn == nil {
		return nil, fmt.Errorf("session %s has no active connection", sessionID)
	}
	return conn, nil
}

// Delete tears the session down and cascades deletion of its entity
// and credential records. Deleting an unknown session is a no-op.
func (m *Manager) Delete(ctx context.Context, sessionID string) error {
	m.mu.Lock()
	r, ok := m.runners[sessionID]
	if ok {
		delete(m.runners, sessionID)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}

	r.teardown(ctx, true)

	if err := m.db.DeleteSessionData(sessionID); err != nil {
		return fmt.Errorf("cascade session data: %w", err)
	}
	m.logger.Info("session deleted", zap.String("session", sessionID))
	return nil
}

// Restore re-creates every session whose config record survived the
// last shutdown. Individual failures are logged and skipped.
func (m *Manager) Restore(ctx context.Context) {
	records, err := m.creds.ListByPrefix(m.cfg.SessionConfigID)
	if err != nil {
		m.logger.Error("error listing session configs", zap.Error(err))
		return
	}
	for _, rec := range records {
		var opts Options
		if err := json.Unmarshal(rec.Data, &opts); err != nil {
			m.logger.Error("error decoding session config", zap.Error(err), zap.String("session", rec.SessionID))
			continue
		}
		if _, err := m.Create(ctx, rec.SessionID, opts); err != nil {
			m.logger.Error("error restoring session", zap.Error(err), zap.String("session", rec.SessionID))
		}
	}
	if len(records) > 0 {
		m.logger.Info("restored sessions", zap.Int("count", len(records)))
	}
}

// Shutdown disconnects every session without deleting records, for
// process teardown.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	runners := make([]*runner, 0, len(m.runners))
	for _, r := range m.runners {
		runners = append(runners, r)
	}
	m.runners = make(map[string]*runner)
	m.mu.Unlock()

	for _, r := range runners {
		r.teardown(ctx, false)
	}
}

func (m *Manager) remove(sessionID string) {
	m.mu.Lock()
	delete(m.runners, sessionID)
	m.mu.Unlock()
}

func (m *Manager) configRecordID(sessionID string) string {
	return m.cfg.SessionConfigID + "-" + sessionID
}
