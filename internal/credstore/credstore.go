// Package credstore persists per-session authentication material and
// rotating protocol key material as opaque blobs keyed by
// (sessionId, recordId).
package credstore

import (
	"strings"

	"github.com/matheus3301/wagate/internal/store"
	"go.uber.org/zap"
)

// Store is the gateway-wide credential store backed by the sessions
// table.
type Store struct {
	db     *store.DB
	logger *zap.Logger
}

// New creates a credential store.
func New(db *store.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// ForSession returns a view scoped to one session id.
func (s *Store) ForSession(sessionID string) *Scoped {
	return &Scoped{
		store:     s,
		sessionID: sessionID,
		logger:    s.logger.With(zap.String("session", sessionID)),
	}
}

// ListByPrefix returns every record whose id starts with prefix, across
// all sessions.
func (s *Store) ListByPrefix(prefix string) ([]store.SessionRecord, error) {
	return s.db.ListSessionRecordsByPrefix(sanitizeID(prefix))
}

// Scoped is the keyval contract for one session.
type Scoped struct {
	store     *Store
	sessionID string
	logger    *zap.Logger
}

// SessionID returns the owning session id.
func (c *Scoped) SessionID() string {
	return c.sessionID
}

// Write creates or replaces a blob under the sanitized record id.
func (c *Scoped) Write(id string, data []byte) error {
	return c.store.db.PutSessionRecord(c.sessionID, sanitizeID(id), data)
}

// Read returns a blob, or nil when the record is absent.
func (c *Scoped) Read(id string) ([]byte, error) {
	data, err := c.store.db.GetSessionRecord(c.sessionID, sanitizeID(id))
	if err != nil {
		return nil, err
	}
	if data == nil {
		c.logger.Info("trying to read non existent session data", zap.String("id", id))
	}
	return data, nil
}

// Delete removes a blob. Missing records are a no-op.
func (c *Scoped) Delete(id string) error {
	return c.store.db.DeleteSessionRecord(c.sessionID, sanitizeID(id))
}

// sanitizeID replaces path-unsafe characters before the id is used as a
// storage key.
func sanitizeID(id string) string {
	return strings.ReplaceAll(strings.ReplaceAll(id, "/", "__"), ":", "-")
}
