package store

import (
	"database/sql"
	"strings"
)

// UpsertContact inserts or updates a contact keyed by (session_id, id).
// Empty incoming names never blank out a previously synced name.
func (db *DB) UpsertContact(c *Contact) error {
	_, err := db.Exec(`
		INSERT INTO contacts (session_id, id, name, push_name, verified_name, img_url, status)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id, id) DO UPDATE SET
			name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
			push_name = CASE WHEN excluded.push_name != '' THEN excluded.push_name ELSE contacts.push_name END,
			verified_name = CASE WHEN excluded.verified_name != '' THEN excluded.verified_name ELSE contacts.verified_name END,
			img_url = CASE WHEN excluded.img_url != '' THEN excluded.img_url ELSE contacts.img_url END,
			status = CASE WHEN excluded.status != '' THEN excluded.status ELSE contacts.status END`,
		c.SessionID, c.ID, c.Name, c.PushName, c.VerifiedName, c.ImgURL, c.Status)
	return err
}

// CreateContacts inserts the contacts that are not already present,
// skipping duplicates. Returns the number of rows added.
func (db *DB) CreateContacts(sessionID string, contacts []Contact) (int, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	added := 0
	for _, c := range contacts {
		res, err := tx.Exec(`
			INSERT INTO contacts (session_id, id, name, push_name, verified_name, img_url, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(session_id, id) DO NOTHING`,
			sessionID, c.ID, c.Name, c.PushName, c.VerifiedName, c.ImgURL, c.Status)
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

// UpdateContact applies a partial patch. Returns false without error
// when the contact does not exist.
func (db *DB) UpdateContact(sessionID string, p *ContactPatch) (bool, error) {
	var sets []string
	var args []any
	if p.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *p.Name)
	}
	if p.PushName != nil {
		sets = append(sets, "push_name = ?")
		args = append(args, *p.PushName)
	}
	if p.VerifiedName != nil {
		sets = append(sets, "verified_name = ?")
		args = append(args, *p.VerifiedName)
	}
	if p.ImgURL != nil {
		sets = append(sets, "img_url = ?")
		args = append(args, *p.ImgURL)
	}
	if p.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *p.Status)
	}
	if len(sets) == 0 {
		c, err := db.GetContact(sessionID, p.ID)
		return c != nil, err
	}

	args = append(args, sessionID, p.ID)
	res, err := db.Exec(`UPDATE contacts SET `+strings.Join(sets, ", ")+` WHERE session_id = ? AND id = ?`, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// GetContact returns a contact, or nil when absent.
func (db *DB) GetContact(sessionID, id string) (*Contact, error) {
	var c Contact
	err := db.QueryRow(`
		SELECT pk_id, session_id, id, name, push_name, verified_name, img_url, status
		FROM contacts WHERE session_id = ? AND id = ?`, sessionID, id).
		Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.PushName, &c.VerifiedName, &c.ImgURL, &c.Status)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListContacts returns contacts for a session paginated by the
// surrogate key.
func (db *DB) ListContacts(sessionID string, afterPk int64, limit int) ([]Contact, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT pk_id, session_id, id, name, push_name, verified_name, img_url, status
		FROM contacts
		WHERE session_id = ? AND pk_id > ?
		ORDER BY pk_id ASC
		LIMIT ?`, sessionID, afterPk, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.PkID, &c.SessionID, &c.ID, &c.Name, &c.PushName, &c.VerifiedName, &c.ImgURL, &c.Status); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
