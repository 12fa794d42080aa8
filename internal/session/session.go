// Package session owns the in-memory registry of active sessions and
// the per-session connection state machine. The manager is the root of
// the control plane: it creates, restores, lists and destroys sessions
// and enforces the per-session singleton and reconnection budgets.
package session

import (
	"errors"

	"github.com/matheus3301/wagate/internal/engine"
)

// Status is the externally reported connection status of a session.
type Status string

const (
	StatusUnknown       Status = "unknown"
	StatusWaitForQRAuth Status = "wait_for_qrcode_auth"
	StatusAuthenticated Status = "authenticated"
	StatusPullingData   Status = "pulling_wa_data"
	StatusConnected     Status = "connected"
	StatusDisconnected  Status = "disconnected"
)

var (
	// ErrSessionExists is returned by Create when the id is already
	// registered.
	ErrSessionExists = errors.New("session already exists")
	// ErrSessionNotFound is returned by registry reads for an unknown id.
	ErrSessionNotFound = errors.New("session not found")
)

// Options selects per-session behavior at creation time. The pairing
// mode is fixed for the session's lifetime. Options are persisted as
// the restart-recovery config record.
type Options struct {
	// Streamed selects the streamed pairing mode: every QR challenge is
	// pushed to the caller, up to the configured maximum. When false the
	// first challenge is resolved once to the creation caller.
	Streamed bool `json:"streamed"`
	// ReadIncomingMessages marks live inbound messages as read shortly
	// after they are persisted.
	ReadIncomingMessages bool `json:"readIncomingMessages"`
}

// Info is one entry of the session listing.
type Info struct {
	ID     string `json:"id"`
	Status Status `json:"status"`
}

// Pairing is the reply handle of a Create call. In interactive mode QR
// carries the first challenge only; in streamed mode it carries every
// challenge up to the configured cap. The channel is closed on
// teardown.
type Pairing struct {
	QR <-chan string
}

// deriveStatus reports the explicit status when one is known, otherwise
// falls back to the raw transport phase, upgraded to authenticated once
// the engine has an identified user.
func deriveStatus(explicit Status, conn engine.Conn) Status {
	if explicit != StatusUnknown {
		return explicit
	}
	if conn == nil || !conn.Connected() {
		return StatusDisconnected
	}
	if conn.LoggedIn() {
		return StatusAuthenticated
	}
	return StatusConnected
}
