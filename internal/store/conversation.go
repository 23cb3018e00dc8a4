package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// OrderPair returns a and b sorted so the smaller id comes first.
func OrderPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// FindOrCreateConversation returns the conversation between a and b,
// creating it if needed. The insert is an upsert on the ordered pair, so
// concurrent callers always converge on a single row.
func (db *DB) FindOrCreateConversation(ctx context.Context, a, b string) (*Conversation, error) {
	lo, hi := OrderPair(a, b)
	now := time.Now().UnixMilli()
	if _, err := db.ExecContext(ctx, `
		INSERT INTO conversations (id, participant_a, participant_b, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(participant_a, participant_b) DO NOTHING`,
		uuid.NewString(), lo, hi, now, now); err != nil {
		return nil, err
	}
	return scanConversation(db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, last_message_id, created_at, updated_at
		FROM conversations WHERE participant_a = ? AND participant_b = ?`, lo, hi))
}

// GetConversation returns a conversation by id, or ErrNotFound.
func (db *DB) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return scanConversation(db.QueryRowContext(ctx, `
		SELECT id, participant_a, participant_b, last_message_id, created_at, updated_at
		FROM conversations WHERE id = ?`, id))
}

func scanConversation(row *sql.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.ParticipantA, &c.ParticipantB, &c.LastMessageID, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ListConversations returns userID's conversations, most recently active first,
// with userID's unread count.
func (db *DB) ListConversations(ctx context.Context, userID string, limit int) ([]ConversationSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := db.QueryContext(ctx, `
		SELECT c.id, c.participant_a, c.participant_b, c.last_message_id, c.created_at, c.updated_at,
			COALESCE(u.count, 0)
		FROM conversations c
		LEFT JOIN conversation_unread u ON u.conversation_id = c.id AND u.user_id = ?
		WHERE c.participant_a = ? OR c.participant_b = ?
		ORDER BY c.updated_at DESC
		LIMIT ?`, userID, userID, userID, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []ConversationSummary
	for rows.Next() {
		var s ConversationSummary
		if err := rows.Scan(&s.ID, &s.ParticipantA, &s.ParticipantB, &s.LastMessageID, &s.CreatedAt, &s.UpdatedAt, &s.Unread); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Unread returns userID's unread count in a conversation. Unknown keys read as 0.
func (db *DB) Unread(ctx context.Context, conversationID, userID string) (int, error) {
	var n int
	err := db.QueryRowContext(ctx, `
		SELECT count FROM conversation_unread WHERE conversation_id = ? AND user_id = ?`,
		conversationID, userID).Scan(&n)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	return n, err
}

// IncrementUnread adds one to userID's unread count.
func (db *DB) IncrementUnread(ctx context.Context, conversationID, userID string) error {
	return incrementUnread(ctx, db.DB, conversationID, userID)
}

// IncrementUnread adds one to userID's unread count.
func (tx *Tx) IncrementUnread(ctx context.Context, conversationID, userID string) error {
	return incrementUnread(ctx, tx.tx, conversationID, userID)
}

func incrementUnread(ctx context.Context, q querier, conversationID, userID string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count) VALUES (?, ?, 1)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = conversation_unread.count + 1`,
		conversationID, userID)
	return err
}

// ClearUnread sets userID's unread count to zero.
func (db *DB) ClearUnread(ctx context.Context, conversationID, userID string) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO conversation_unread (conversation_id, user_id, count) VALUES (?, ?, 0)
		ON CONFLICT(conversation_id, user_id) DO UPDATE SET count = 0`,
		conversationID, userID)
	return err
}

// SetLastMessage moves the conversation's last-message pointer.
func (db *DB) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	return setLastMessage(ctx, db.DB, conversationID, messageID)
}

// SetLastMessage moves the conversation's last-message pointer.
func (tx *Tx) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	return setLastMessage(ctx, tx.tx, conversationID, messageID)
}

func setLastMessage(ctx context.Context, q querier, conversationID, messageID string) error {
	res, err := q.ExecContext(ctx, `
		UPDATE conversations SET last_message_id = ?, updated_at = ? WHERE id = ?`,
		messageID, time.Now().UnixMilli(), conversationID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ConversationCount returns the total number of conversations.
func (db *DB) ConversationCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversations`).Scan(&count)
	return count, err
}
