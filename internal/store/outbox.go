package store

import (
	"context"
	"time"
)

// AppendEvent journals a domain event for export. Re-appending an event id
// is a no-op.
func (db *DB) AppendEvent(ctx context.Context, e *OutboxEntry) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO event_outbox (event_id, topic, kind, payload, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'queued', ?, ?)
		ON CONFLICT(event_id) DO NOTHING`,
		e.EventID, e.Topic, e.Kind, e.Payload, now, now)
	return err
}

// PendingEvents returns up to limit queued events, oldest first.
func (db *DB) PendingEvents(ctx context.Context, limit int) ([]OutboxEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, event_id, topic, kind, payload, status, attempts, error_message, created_at
		FROM event_outbox WHERE status = 'queued' ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []OutboxEntry
	for rows.Next() {
		var e OutboxEntry
		if err := rows.Scan(&e.ID, &e.EventID, &e.Topic, &e.Kind, &e.Payload, &e.Status, &e.Attempts, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// MarkEventSent updates an outbox entry to 'sent'.
func (db *DB) MarkEventSent(ctx context.Context, id int64) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE event_outbox SET status = 'sent', attempts = attempts + 1, updated_at = ? WHERE id = ?`, now, id)
	return err
}

// MarkEventFailed records a failed export attempt. The entry stays queued
// until it has failed maxAttempts times, then it is parked as 'failed'.
func (db *DB) MarkEventFailed(ctx context.Context, id int64, errMsg string, maxAttempts int) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		UPDATE event_outbox SET
			attempts = attempts + 1,
			error_message = ?,
			status = CASE WHEN attempts + 1 >= ? THEN 'failed' ELSE 'queued' END,
			updated_at = ?
		WHERE id = ?`, errMsg, maxAttempts, now, id)
	return err
}

// EventCounts returns the number of outbox entries per status.
func (db *DB) EventCounts(ctx context.Context) (map[string]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT status, COUNT(*) FROM event_outbox GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := map[string]int64{}
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		out[status] = n
	}
	return out, rows.Err()
}
