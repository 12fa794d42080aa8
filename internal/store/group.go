package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// UpsertGroup inserts or updates a group metadata record keyed by
// (session_id, id). The participant list is stored as JSON.
func (db *DB) UpsertGroup(g *GroupMetadata) error {
	parts, err := json.Marshal(g.Participants)
	if err != nil {
		return fmt.Errorf("marshal participants: %w", err)
	}
	_, err = db.Exec(`
		INSERT INTO group_metadata (session_id, id, subject, owner, description, creation, announce, restricted, participants)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			subject = excluded.subject,
			owner = excluded.owner,
			description = excluded.description,
			creation = excluded.creation,
			announce = excluded.announce,
			restricted = excluded.restricted,
			participants = excluded.participants`,
		g.SessionID, g.ID, g.Subject, g.Owner, g.Description, g.Creation, g.Announce, g.Restricted, string(parts))
	return err
}

// GetGroup returns a group metadata record, or nil when absent.
func (db *DB) GetGroup(sessionID, id string) (*GroupMetadata, error) {
	var g GroupMetadata
	var parts string
	err := db.QueryRow(`
		SELECT pk_id, session_id, id, subject, owner, description, creation, announce, restricted, participants
		FROM group_metadata WHERE session_id = ? AND id = ?`, sessionID, id).
		Scan(&g.PkID, &g.SessionID, &g.ID, &g.Subject, &g.Owner, &g.Description, &g.Creation, &g.Announce, &g.Restricted, &parts)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(parts), &g.Participants); err != nil {
		return nil, fmt.Errorf("unmarshal participants: %w", err)
	}
	return &g, nil
}

// UpdateGroup applies a partial metadata patch. Returns false without
// error when the group does not exist.
func (db *DB) UpdateGroup(sessionID string, p *GroupPatch) (bool, error) {
	var sets []string
	var args []any
	if p.Subject != nil {
		sets = append(sets, "subject = ?")
		args = append(args, *p.Subject)
	}
	if p.Owner != nil {
		sets = append(sets, "owner = ?")
		args = append(args, *p.Owner)
	}
	if p.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *p.Description)
	}
	if p.Announce != nil {
		sets = append(sets, "announce = ?")
		args = append(args, *p.Announce)
	}
	if p.Restricted != nil {
		sets = append(sets, "restricted = ?")
		args = append(args, *p.Restricted)
	}
	if len(sets) == 0 {
		g, err := db.GetGroup(sessionID, p.ID)
		return g != nil, err
	}

	args = append(args, sessionID, p.ID)
	res, err := db.Exec(`UPDATE group_metadata SET `+strings.Join(sets, ", ")+` WHERE session_id = ? AND id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetGroupParticipants replaces the stored participant list. Returns
// false without error when the group does not exist.
func (db *DB) SetGroupParticipants(sessionID, id string, participants []Participant) (bool, error) {
	parts, err := json.Marshal(participants)
	if err != nil {
		return false, fmt.Errorf("marshal participants: %w", err)
	}
	res, err := db.Exec(`UPDATE group_metadata SET participants = ? WHERE session_id = ? AND id = ?`,
		string(parts), sessionID, id)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}
