package store

import "strings"

// UpsertMessage inserts or updates a message keyed by
// (session_id, remote_jid, id).
func (db *DB) UpsertMessage(m *Message) error {
	_, err := db.Exec(`
		INSERT INTO messages (session_id, remote_jid, id, participant, push_name, from_me, message_type, body, status, message_timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, remote_jid, id) DO UPDATE SET
			participant = excluded.participant,
			push_name = excluded.push_name,
			message_type = excluded.message_type,
			body = excluded.body,
			status = excluded.status,
			message_timestamp = excluded.message_timestamp`,
		m.SessionID, m.RemoteJID, m.ID, m.Participant, m.PushName, m.FromMe, m.MessageType, m.Body, m.Status, m.MessageTimestamp)
	return err
}

// CreateMessages bulk-loads messages for a session. When replace is
// true all messages for the session, including their receipt and
// reaction sets, are removed first; otherwise rows already present are
// skipped. Returns the number of rows added.
func (db *DB) CreateMessages(sessionID string, msgs []Message, replace bool) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		for _, table := range []string{"messages", "message_receipts", "message_reactions"} {
			if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ?`, sessionID); err != nil {
				return 0, err
			}
		}
	}

	added := 0
	for _, m := range msgs {
		res, err := tx.Exec(`
			INSERT INTO messages (session_id, remote_jid, id, participant, push_name, from_me, message_type, body, status, message_timestamp)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, remote_jid, id) DO NOTHING`,
			sessionID, m.RemoteJID, m.ID, m.Participant, m.PushName, m.FromMe, m.MessageType, m.Body, m.Status, m.MessageTimestamp)
		if err != nil {
			return 0, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		added += int(n)
	}

	return added, tx.Commit()
}

// UpdateMessage applies a partial patch. Returns false without error
// when the message does not exist.
func (db *DB) UpdateMessage(sessionID string, p *MessagePatch) (bool, error) {
	var sets []string
	var args []any
	if p.Body != nil {
		sets = append(sets, "body = ?")
		args = append(args, *p.Body)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if p.MessageTimestamp != nil {
		sets = append(sets, "message_timestamp = ?")
		args = append(args, *p.MessageTimestamp)
	}
	if len(sets) == 0 {
		return db.MessageExists(sessionID, p.RemoteJID, p.ID)
	}

	args = append(args, sessionID, p.RemoteJID, p.ID)
	res, err := db.Exec(`UPDATE messages SET `+strings.Join(sets, ", ")+` WHERE session_id = ? AND remote_jid = ? AND id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteMessages removes messages by id set within one conversation,
// along with their receipt and reaction sets.
func (db *DB) DeleteMessages(sessionID, remoteJID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	placeholders := `(?` + strings.Repeat(", ?", len(ids)-1) + `)`
	args := make([]any, 0, len(ids)+2)
	args = append(args, sessionID, remoteJID)
	for _, id := range ids {
		args = append(args, id)
	}

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND remote_jid = ? AND id IN `+placeholders, args...); err != nil {
		return err
	}
	for _, table := range []string{"message_receipts", "message_reactions"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ? AND remote_jid = ? AND message_id IN `+placeholders, args...); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// DeleteConversation removes every message for one conversation,
// leaving other conversations untouched.
func (db *DB) DeleteConversation(sessionID, remoteJID string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`DELETE FROM messages WHERE session_id = ? AND remote_jid = ?`, sessionID, remoteJID); err != nil {
		return err
	}
	for _, table := range []string{"message_receipts", "message_reactions"} {
		if _, err := tx.Exec(`DELETE FROM `+table+` WHERE session_id = ? AND remote_jid = ?`, sessionID, remoteJID); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// MessageExists reports whether the message is present for the session.
func (db *DB) MessageExists(sessionID, remoteJID, id string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE session_id = ? AND remote_jid = ? AND id = ?`,
		sessionID, remoteJID, id).Scan(&count)
	return count > 0, err
}

// GetMessage returns a message, or nil when absent.
func (db *DB) GetMessage(sessionID, remoteJID, id string) (*Message, error) {
	rows, err := db.Query(`
		SELECT pk_id, session_id, remote_jid, id, participant, push_name, from_me, message_type, body, status, message_timestamp
		FROM messages WHERE session_id = ? AND remote_jid = ? AND id = ?`, sessionID, remoteJID, id)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	var m Message
	if err := rows.Scan(&m.PkID, &m.SessionID, &m.RemoteJID, &m.ID, &m.Participant, &m.PushName, &m.FromMe, &m.MessageType, &m.Body, &m.Status, &m.MessageTimestamp); err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMessages returns messages for one conversation using keyset
// pagination by the surrogate key.
func (db *DB) ListMessages(sessionID, remoteJID string, afterPk int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT pk_id, session_id, remote_jid, id, participant, push_name, from_me, message_type, body, status, message_timestamp
		FROM messages
		WHERE session_id = ? AND remote_jid = ? AND pk_id > ?
		ORDER BY pk_id ASC
		LIMIT ?`, sessionID, remoteJID, afterPk, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.PkID, &m.SessionID, &m.RemoteJID, &m.ID, &m.Participant, &m.PushName, &m.FromMe, &m.MessageType, &m.Body, &m.Status, &m.MessageTimestamp); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// UpsertReceipt stores a delivery receipt inside the message's receipt
// set, replacing any prior receipt from the same participant.
func (db *DB) UpsertReceipt(sessionID string, r *Receipt) error {
	_, err := db.Exec(`
		INSERT INTO message_receipts (session_id, remote_jid, message_id, user_jid, receipt_type, receipt_timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, remote_jid, message_id, user_jid) DO UPDATE SET
			receipt_type = excluded.receipt_type,
			receipt_timestamp = excluded.receipt_timestamp`,
		sessionID, r.RemoteJID, r.MessageID, r.UserJID, r.Type, r.ReceiptTimestamp)
	return err
}

// ListReceipts returns the receipt set for one message.
func (db *DB) ListReceipts(sessionID, remoteJID, messageID string) ([]Receipt, error) {
	rows, err := db.Query(`
		SELECT remote_jid, message_id, user_jid, receipt_type, receipt_timestamp
		FROM message_receipts
		WHERE session_id = ? AND remote_jid = ? AND message_id = ?
		ORDER BY user_jid`, sessionID, remoteJID, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var receipts []Receipt
	for rows.Next() {
		var r Receipt
		if err := rows.Scan(&r.RemoteJID, &r.MessageID, &r.UserJID, &r.Type, &r.ReceiptTimestamp); err != nil {
			return nil, err
		}
		receipts = append(receipts, r)
	}
	return receipts, rows.Err()
}

// SetReaction applies a reaction update: any prior reaction from the
// same author is removed, and when the text is non-empty the new
// reaction is stored. Empty text means "reaction removed".
func (db *DB) SetReaction(sessionID string, r *Reaction) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`
		DELETE FROM message_reactions
		WHERE session_id = ? AND remote_jid = ? AND message_id = ? AND author_id = ?`,
		sessionID, r.RemoteJID, r.MessageID, r.AuthorID); err != nil {
		return err
	}
	if r.Text != "" {
		if _, err := tx.Exec(`
			INSERT INTO message_reactions (session_id, remote_jid, message_id, author_id, text, reaction_timestamp)
			VALUES (?, ?, ?, ?, ?, ?)`,
			sessionID, r.RemoteJID, r.MessageID, r.AuthorID, r.Text, r.ReactionTimestamp); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// ListReactions returns the live reactions for one message.
func (db *DB) ListReactions(sessionID, remoteJID, messageID string) ([]Reaction, error) {
	rows, err := db.Query(`
		SELECT remote_jid, message_id, author_id, text, reaction_timestamp
		FROM message_reactions
		WHERE session_id = ? AND remote_jid = ? AND message_id = ?
		ORDER BY author_id`, sessionID, remoteJID, messageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var reactions []Reaction
	for rows.Next() {
		var r Reaction
		if err := rows.Scan(&r.RemoteJID, &r.MessageID, &r.AuthorID, &r.Text, &r.ReactionTimestamp); err != nil {
			return nil, err
		}
		reactions = append(reactions, r)
	}
	return reactions, rows.Err()
}
