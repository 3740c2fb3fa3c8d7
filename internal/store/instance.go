package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// EnsureInstance inserts an instance row with status init if it does not exist.
// It reports whether a row was created.
func (db *DB) EnsureInstance(id string) (bool, error) {
	now := db.nowMillis()
	res, err := db.Exec(`
		INSERT INTO instances (id, status, created_at, updated_at)
		VALUES (?, 'init', ?, ?)
		ON CONFLICT(id) DO NOTHING`, id, now, now)
	if err != nil {
		return false, fmt.Errorf("ensure instance %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// SetInstanceStatus persists a status value. updated_at never moves backwards.
func (db *DB) SetInstanceStatus(id, status string) error {
	res, err := db.Exec(`
		UPDATE instances SET status = ?, updated_at = MAX(updated_at, ?)
		WHERE id = ?`, status, db.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("set status %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set status %q: %w", id, ErrNotFound)
	}
	return nil
}

// SetInstanceProfile stores the linked-account fields. Empty values keep what is stored.
func (db *DB) SetInstanceProfile(id string, p Profile) error {
	res, err := db.Exec(`
		UPDATE instances SET
			user_id = CASE WHEN ? != '' THEN ? ELSE user_id END,
			user_name = CASE WHEN ? != '' THEN ? ELSE user_name END,
			avatar_url = CASE WHEN ? != '' THEN ? ELSE avatar_url END,
			updated_at = MAX(updated_at, ?)
		WHERE id = ?`,
		p.UserID, p.UserID, p.UserName, p.UserName, p.AvatarURL, p.AvatarURL, db.nowMillis(), id)
	if err != nil {
		return fmt.Errorf("set profile %q: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("set profile %q: %w", id, ErrNotFound)
	}
	return nil
}

// GetInstance returns an instance row, or nil if it does not exist.
func (db *DB) GetInstance(id string) (*Instance, error) {
	var in Instance
	err := db.QueryRow(`
		SELECT id, status, user_id, user_name, avatar_url, created_at, updated_at
		FROM instances WHERE id = ?`, id).
		Scan(&in.ID, &in.Status, &in.UserID, &in.UserName, &in.AvatarURL, &in.CreatedAt, &in.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &in, nil
}

// DeleteInstance removes an instance row; contacts, chats and messages cascade.
// Deleting a missing row is not an error.
func (db *DB) DeleteInstance(id string) (bool, error) {
	res, err := db.Exec(`DELETE FROM instances WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete instance %q: %w", id, err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// InstanceIDs returns every stored instance identifier.
func (db *DB) InstanceIDs() ([]string, error) {
	rows, err := db.Query(`SELECT id FROM instances ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListInstances returns the instance read model. Counts are computed on every call.
func (db *DB) ListInstances() ([]InstanceSummary, error) {
	rows, err := db.Query(`
		SELECT i.id, i.status, i.user_id, i.user_name, i.avatar_url, i.created_at, i.updated_at,
			(SELECT COUNT(*) FROM contacts c WHERE c.instance_id = i.id),
			(SELECT COUNT(*) FROM chats ch WHERE ch.instance_id = i.id),
			(SELECT COUNT(*) FROM messages m WHERE m.instance_id = i.id)
		FROM instances i
		ORDER BY i.created_at DESC, i.id`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []InstanceSummary
	for rows.Next() {
		var s InstanceSummary
		if err := rows.Scan(&s.ID, &s.Status, &s.UserID, &s.UserName, &s.AvatarURL, &s.CreatedAt, &s.UpdatedAt,
			&s.ContactsCount, &s.ChatsCount, &s.MessagesCount); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
