package store

import "strings"

// UpsertChat inserts or updates a chat record keyed by (session_id, id).
func (db *DB) UpsertChat(c *Chat) error {
	_, err := db.Exec(`
		INSERT INTO chats (session_id, id, name, is_group, unread_count, conversation_timestamp, archived, pinned, mute_end_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			name = excluded.name,
			is_group = excluded.is_group,
			unread_count = excluded.unread_count,
			conversation_timestamp = excluded.conversation_timestamp,
			archived = excluded.archived,
			pinned = excluded.pinned,
			mute_end_time = excluded.mute_end_time`,
		c.SessionID, c.ID, c.Name, c.IsGroup, c.UnreadCount, c.ConversationTimestamp, c.Archived, c.Pinned, c.MuteEndTime)
	return err
}

// CreateChats bulk-loads chats for a session. When replace is true all
// existing chats for the session are removed first; otherwise only
// chats whose id is not already present are inserted. Returns the
// number of rows added, so redelivery of the same batch is a no-op.
func (db *DB) CreateChats(sessionID string, chats []Chat, replace bool) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if replace {
		if _, err := tx.Exec(`DELETE FROM chats WHERE session_id = ?`, sessionID); err != nil {
			return 0, err
		}
	}

	existing := make(map[string]bool)
	rows, err := tx.Query(`SELECT id FROM chats WHERE session_id = ?`, sessionID)
	if err != nil {
		return 0, err
	}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return 0, err
		}
		existing[id] = true
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	added := 0
	for _, c := range chats {
		if existing[c.ID] {
			continue
		}
		if _, err := tx.Exec(`
			INSERT INTO chats (session_id, id, name, is_group, unread_count, conversation_timestamp, archived, pinned, mute_end_time)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sessionID, c.ID, c.Name, c.IsGroup, c.UnreadCount, c.ConversationTimestamp, c.Archived, c.Pinned, c.MuteEndTime); err != nil {
			return 0, err
		}
		existing[c.ID] = true
		added++
	}

	return added, tx.Commit()
}

// UpdateChat applies a partial patch. The unread counter follows the
// delta rule: positive increments, zero or negative sets. Returns false
// without error when the chat does not exist.
func (db *DB) UpdateChat(sessionID string, p *ChatPatch) (bool, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.UnreadCount != nil {
		if *p.UnreadCount > 0 {
			sets = append(sets, "unread_count = unread_count + ?")
		} else {
			sets = append(sets, "unread_count = ?")
		}
		args = append(args, *p.UnreadCount)
	}
	if p.ConversationTimestamp != nil {
		sets = append(sets, "conversation_timestamp = ?")
		args = append(args, *p.ConversationTimestamp)
	}
	if p.Archived != nil {
		sets = append(sets, "archived = ?")
		args = append(args, *p.Archived)
	}
	if p.Pinned != nil {
		sets = append(sets, "pinned = ?")
		args = append(args, *p.Pinned)
	}
	if p.MuteEndTime != nil {
		sets = append(sets, "mute_end_time = ?")
		args = append(args, *p.MuteEndTime)
	}
	if len(sets) == 0 {
		return db.ChatExists(sessionID, p.ID)
	}

	args = append(args, sessionID, p.ID)
	res, err := db.Exec(`UPDATE chats SET `+strings.Join(sets, ", ")+` WHERE session_id = ? AND id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// DeleteChats removes the chats with the given ids.
func (db *DB) DeleteChats(sessionID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, sessionID)
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := db.Exec(`DELETE FROM chats WHERE session_id = ? AND id IN (?`+strings.Repeat(", ?", len(ids)-1)+`)`, args...)
	return err
}

// ChatExists reports whether the chat is present for the session.
func (db *DB) ChatExists(sessionID, id string) (bool, error) {
	var count int
	err := db.QueryRow(`SELECT COUNT(*) FROM chats WHERE session_id = ? AND id = ?`, sessionID, id).Scan(&count)
	return count > 0, err
}

// ListChats returns chats for a session paginated by the surrogate key.
func (db *DB) ListChats(sessionID string, afterPk int64, limit int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT pk_id, session_id, id, name, is_group, unread_count, conversation_timestamp, archived, pinned, mute_end_time
		FROM chats
		WHERE session_id = ? AND pk_id > ?
		ORDER BY pk_id ASC
		LIMIT ?`, sessionID, afterPk, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.IsGroup, &c.UnreadCount, &c.ConversationTimestamp, &c.Archived, &c.Pinned, &c.MuteEndTime); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}
