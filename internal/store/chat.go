package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// UpsertChats inserts or replaces a chat batch.
func (db *DB) UpsertChats(instanceID string, chats []Chat) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.nowMillis()
	for _, c := range chats {
		if _, err := tx.Exec(`
			INSERT INTO chats (instance_id, jid, name, conversation_ts, unread_count, archived, pinned, mute_until, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id, jid) DO UPDATE SET
				name = CASE WHEN excluded.name != '' THEN excluded.name ELSE chats.name END,
				conversation_ts = MAX(chats.conversation_ts, excluded.conversation_ts),
				unread_count = excluded.unread_count,
				archived = excluded.archived,
				pinned = excluded.pinned,
				mute_until = excluded.mute_until,
				updated_at = excluded.updated_at`,
			instanceID, c.JID, c.Name, c.ConversationTS, c.UnreadCount,
			boolInt(c.Archived), boolInt(c.Pinned), c.MuteUntil, now); err != nil {
			return fmt.Errorf("upsert chat %q: %w", c.JID, err)
		}
	}
	return tx.Commit()
}

// PatchChats applies partial updates, creating stub chats for unknown identifiers.
func (db *DB) PatchChats(instanceID string, patches []ChatPatch) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.nowMillis()
	for _, p := range patches {
		if _, err := tx.Exec(`
			INSERT INTO chats (instance_id, jid, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(instance_id, jid) DO NOTHING`, instanceID, p.JID, now); err != nil {
			return fmt.Errorf("stub chat %q: %w", p.JID, err)
		}
		if _, err := tx.Exec(`
			UPDATE chats SET
				name = COALESCE(?, name),
				conversation_ts = COALESCE(?, conversation_ts),
				unread_count = COALESCE(?, unread_count),
				archived = COALESCE(?, archived),
				pinned = COALESCE(?, pinned),
				mute_until = COALESCE(?, mute_until),
				updated_at = ?
			WHERE instance_id = ? AND jid = ?`,
			p.Name, p.ConversationTS, p.UnreadCount, p.Archived, p.Pinned, p.MuteUntil, now,
			instanceID, p.JID); err != nil {
			return fmt.Errorf("patch chat %q: %w", p.JID, err)
		}
	}
	return tx.Commit()
}

// DeleteChats hard-deletes chats and their messages. Unknown identifiers are ignored.
func (db *DB) DeleteChats(instanceID string, jids []string) (int64, error) {
	tx, err := db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var deleted int64
	for _, jid := range jids {
		res, err := tx.Exec(`DELETE FROM chats WHERE instance_id = ? AND jid = ?`, instanceID, jid)
		if err != nil {
			return 0, fmt.Errorf("delete chat %q: %w", jid, err)
		}
		n, _ := res.RowsAffected()
		deleted += n
	}
	return deleted, tx.Commit()
}

// ListChats returns chats sorted by last activity descending.
// Names fall back to the contact's name, then notify name, then the jid.
func (db *DB) ListChats(instanceID string, limit, offset int) ([]Chat, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.Query(`
		SELECT c.jid,
			COALESCE(NULLIF(c.name,''), NULLIF(ct.name,''), NULLIF(ct.notify,''), c.jid) AS display_name,
			c.conversation_ts, c.unread_count, c.archived, c.pinned, c.mute_until
		FROM chats c
		LEFT JOIN contacts ct ON ct.instance_id = c.instance_id AND ct.jid = c.jid
		WHERE c.instance_id = ?
		ORDER BY c.pinned DESC, c.conversation_ts DESC
		LIMIT ? OFFSET ?`, instanceID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var chats []Chat
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.JID, &c.Name, &c.ConversationTS, &c.UnreadCount, &c.Archived, &c.Pinned, &c.MuteUntil); err != nil {
			return nil, err
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// GetChat returns a single chat, or nil if it does not exist.
func (db *DB) GetChat(instanceID, jid string) (*Chat, error) {
	var c Chat
	err := db.QueryRow(`
		SELECT jid, name, conversation_ts, unread_count, archived, pinned, mute_until
		FROM chats WHERE instance_id = ? AND jid = ?`, instanceID, jid).
		Scan(&c.JID, &c.Name, &c.ConversationTS, &c.UnreadCount, &c.Archived, &c.Pinned, &c.MuteUntil)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}
