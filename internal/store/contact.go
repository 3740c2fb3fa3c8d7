package store

import "fmt"

// UpsertContacts inserts or updates a contact batch in a single transaction.
// Empty fields never overwrite stored values, so partial update batches are safe.
func (db *DB) UpsertContacts(instanceID string, contacts []Contact) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.nowMillis()
	for _, c := range contacts {
		if _, err := tx.Exec(`
			INSERT INTO contacts (instance_id, jid, name, notify, verified_name, status_text, avatar_url, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id, jid) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE contacts.name END,
				notify = CASE WHEN excluded.notify != '' THEN excluded.notify ELSE contacts.notify END,
				verified_name = CASE WHEN excluded.verified_name != '' THEN excluded.verified_name ELSE contacts.verified_name END,
				status_text = CASE WHEN excluded.status_text != '' THEN excluded.status_text ELSE contacts.status_text END,
				avatar_url = CASE WHEN excluded.avatar_url != '' THEN excluded.avatar_url ELSE contacts.avatar_url END,
				updated_at = excluded.updated_at`,
			instanceID, c.JID, c.Name, c.Notify, c.VerifiedName, c.Status, c.AvatarURL, now); err != nil {
			return fmt.Errorf("upsert contact %q: %w", c.JID, err)
		}
	}
	return tx.Commit()
}

// ListContacts returns an instance's contacts ordered by display name.
func (db *DB) ListContacts(instanceID string, limit, offset int) ([]Contact, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.Query(`
		SELECT jid, name, notify, verified_name, status_text, avatar_url
		FROM contacts
		WHERE instance_id = ?
		ORDER BY COALESCE(NULLIF(name,''), NULLIF(notify,''), jid)
		LIMIT ? OFFSET ?`, instanceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var contacts []Contact
	for rows.Next() {
		var c Contact
		if err := rows.Scan(&c.JID, &c.Name, &c.Notify, &c.VerifiedName, &c.Status, &c.AvatarURL); err != nil {
			return nil, err
		}
		contacts = append(contacts, c)
	}
	return contacts, rows.Err()
}
