package store

import (
	"context"
	"strings"
	"time"
)

// InsertNotification stores a notification record.
func (db *DB) InsertNotification(ctx context.Context, n *Notification) error {
	if n.CreatedAt == 0 {
		n.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO notifications (id, recipient_id, sender_id, type, post_id, comment_id, message_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		n.ID, n.RecipientID, n.SenderID, n.Type, n.PostID, n.CommentID, n.MessageID, n.Read, n.CreatedAt)
	return err
}

// ListNotifications returns recipientID's notifications newest first, using
// keyset pagination by creation time.
func (db *DB) ListNotifications(ctx context.Context, recipientID string, beforeTs int64, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 50
	}
	if beforeTs <= 0 {
		beforeTs = time.Now().UnixMilli() + 1
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, recipient_id, sender_id, type, post_id, comment_id, message_id, read, created_at
		FROM notifications
		WHERE recipient_id = ? AND created_at < ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, recipientID, beforeTs, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.RecipientID, &n.SenderID, &n.Type, &n.PostID, &n.CommentID,
			&n.MessageID, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// MarkNotificationsRead flags recipientID's notifications as read. With no
// ids every notification of the recipient is flagged.
func (db *DB) MarkNotificationsRead(ctx context.Context, recipientID string, ids []string) (int64, error) {
	q := `UPDATE notifications SET read = 1 WHERE recipient_id = ? AND read = 0`
	args := []any{recipientID}
	if len(ids) > 0 {
		q += " AND id IN (?" + strings.Repeat(", ?", len(ids)-1) + ")"
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// CountNotifications counts recipientID's notifications of the given type.
// An empty type counts all of them.
func (db *DB) CountNotifications(ctx context.Context, recipientID, typ string) (int, error) {
	q := `SELECT COUNT(*) FROM notifications WHERE recipient_id = ?`
	args := []any{recipientID}
	if typ != "" {
		q += " AND type = ?"
		args = append(args, typ)
	}
	var n int
	err := db.QueryRowContext(ctx, q, args...).Scan(&n)
	return n, err
}

// NotificationCount returns the total number of notifications.
func (db *DB) NotificationCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM notifications`).Scan(&count)
	return count, err
}
