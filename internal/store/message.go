package store

import "fmt"

// UpsertMessages inserts or updates a message batch (idempotent on chat + msg id).
// Chats referenced before they exist are created as stubs and their last activity
// is advanced to the newest message.
func (db *DB) UpsertMessages(instanceID string, msgs []Message) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := db.nowMillis()
	for _, m := range msgs {
		if _, err := tx.Exec(`
			INSERT INTO chats (instance_id, jid, conversation_ts, updated_at) VALUES (?, ?, ?, ?)
			ON CONFLICT(instance_id, jid) DO UPDATE SET
				conversation_ts = MAX(chats.conversation_ts, excluded.conversation_ts)`,
			instanceID, m.ChatJID, m.Timestamp, now); err != nil {
			return fmt.Errorf("stub chat %q: %w", m.ChatJID, err)
		}
		if _, err := tx.Exec(`
			INSERT INTO messages (instance_id, chat_jid, msg_id, sender_jid, from_me, message_type, content, timestamp, status, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(instance_id, chat_jid, msg_id) DO UPDATE SET
				content = CASE WHEN excluded.content != '' THEN excluded.content ELSE messages.content END,
				status = CASE WHEN excluded.status != '' THEN excluded.status ELSE messages.status END,
				updated_at = excluded.updated_at`,
			instanceID, m.ChatJID, m.MsgID, m.SenderJID, boolInt(m.FromMe), m.MessageType, m.Content,
			m.Timestamp, m.Status, now); err != nil {
			return fmt.Errorf("upsert message %q: %w", m.MsgID, err)
		}
	}
	return tx.Commit()
}

// ListMessages returns messages for a chat using keyset pagination by timestamp.
func (db *DB) ListMessages(instanceID, chatJID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = db.nowMillis() + 1
	}
	rows, err := db.Query(`
		SELECT chat_jid, msg_id, sender_jid, from_me, message_type, content, timestamp, status
		FROM messages
		WHERE instance_id = ? AND chat_jid = ? AND timestamp < ?
		ORDER BY timestamp DESC
		LIMIT ?`, instanceID, chatJID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ChatJID, &m.MsgID, &m.SenderJID, &m.FromMe, &m.MessageType, &m.Content, &m.Timestamp, &m.Status); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MessageCount returns the number of stored messages for an instance.
func (db *DB) MessageCount(instanceID string) (int64, error) {
	var count int64
	err := db.QueryRow(`SELECT COUNT(*) FROM messages WHERE instance_id = ?`, instanceID).Scan(&count)
	return count, err
}
