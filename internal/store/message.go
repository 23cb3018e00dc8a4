package store

import (
	"context"
	"time"
)

// InsertMessage stores a new message.
func (db *DB) InsertMessage(ctx context.Context, m *Message) error {
	return insertMessage(ctx, db.DB, m)
}

// InsertMessage stores a new message.
func (tx *Tx) InsertMessage(ctx context.Context, m *Message) error {
	return insertMessage(ctx, tx.tx, m)
}

func insertMessage(ctx context.Context, q querier, m *Message) error {
	if m.CreatedAt == 0 {
		m.CreatedAt = time.Now().UnixMilli()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, sender_id, receiver_id, body, attachment_kind, attachment_url, type, read, read_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ConversationID, m.SenderID, m.ReceiverID, m.Body, m.AttachmentKind, m.AttachmentURL, m.Type, m.Read, m.ReadAt, m.CreatedAt)
	return err
}

// ListMessages returns messages for a conversation using keyset pagination by
// creation time, newest first.
func (db *DB) ListMessages(ctx context.Context, conversationID string, beforeTs int64, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_id, receiver_id, body, attachment_kind, attachment_url, type, read, read_at, created_at
		FROM messages
		WHERE conversation_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, conversationID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.ReceiverID, &m.Body,
			&m.AttachmentKind, &m.AttachmentURL, &m.Type, &m.Read, &m.ReadAt, &m.CreatedAt); err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// MarkConversationRead flags every unread message addressed to readerID in
// the conversation as read. Returns the number of messages flipped.
func (db *DB) MarkConversationRead(ctx context.Context, conversationID, readerID string, at int64) (int64, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE messages SET read = 1, read_at = ?
		WHERE conversation_id = ? AND receiver_id = ? AND read = 0`,
		at, conversationID, readerID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// MessageCount returns the total number of messages.
func (db *DB) MessageCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages`).Scan(&count)
	return count, err
}
