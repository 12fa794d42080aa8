package store

import "time"

// PutSessionRecord creates or replaces an opaque credential/config blob.
func (db *DB) PutSessionRecord(sessionID, id string, data []byte) error {
	now := time.Now().UnixMilli()
	_, err := db.Exec(`
		INSERT INTO sessions (session_id, id, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`,
		sessionID, id, data, now)
	return err
}

// GetSessionRecord returns a blob, or nil when absent.
func (db *DB) GetSessionRecord(sessionID, id string) ([]byte, error) {
	rows, err := db.Query(`SELECT data FROM sessions WHERE session_id = ? AND id = ?`, sessionID, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var data []byte
	if err := rows.Scan(&data); err != nil {
		return nil, err
	}
	return data, nil
}

// DeleteSessionRecord removes a single blob. Missing rows are a no-op.
func (db *DB) DeleteSessionRecord(sessionID, id string) error {
	_, err := db.Exec(`DELETE FROM sessions WHERE session_id = ? AND id = ?`, sessionID, id)
	return err
}

// ListSessionRecordsByPrefix returns every record whose id starts with
// the given prefix, across all sessions. Used for restart recovery.
func (db *DB) ListSessionRecordsByPrefix(prefix string) ([]SessionRecord, error) {
	rows, err := db.Query(`SELECT session_id, id, data FROM sessions WHERE id LIKE ? || '%' ORDER BY pk_id`, prefix)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []SessionRecord
	for rows.Next() {
		var r SessionRecord
		if err := rows.Scan(&r.SessionID, &r.ID, &r.Data); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteSessionData cascades deletion of everything a session owns:
// entity records, receipt and reaction sets, credential records and
// queued outbox entries.
func (db *DB) DeleteSessionData(sessionID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	tables := []string{
		"chats", "contacts", "messages", "message_receipts",
		"message_reactions", "group_metadata", "sessions", "outbox",
	}
	for _, table := range tables {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
			return err
		}
	}
	return tx.Commit()
}
