package store

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// UpsertUser inserts a user or refreshes its handle. An empty handle keeps the stored one.
func (db *DB) UpsertUser(ctx context.Context, id, handle string) error {
	now := time.Now().UnixMilli()
	_, err := db.ExecContext(ctx, `
		INSERT INTO users (id, handle, presence, last_seen, created_at)
		VALUES (?, ?, 'offline', 0, ?)
		ON CONFLICT(id) DO UPDATE SET
			handle = CASE WHEN excluded.handle != '' THEN excluded.handle ELSE users.handle END`,
		id, handle, now)
	return err
}

// GetUser returns a user by id, or ErrNotFound.
func (db *DB) GetUser(ctx context.Context, id string) (*User, error) {
	var u User
	err := db.QueryRowContext(ctx, `
		SELECT id, handle, presence, last_seen, created_at FROM users WHERE id = ?`, id).
		Scan(&u.ID, &u.Handle, &u.Presence, &u.LastSeen, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// UserExists reports whether id is a known user.
func (db *DB) UserExists(ctx context.Context, id string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE id = ?`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// SetPresence records a presence transition and the last-seen instant.
func (db *DB) SetPresence(ctx context.Context, id, presence string, lastSeen int64) error {
	res, err := db.ExecContext(ctx, `UPDATE users SET presence = ?, last_seen = ? WHERE id = ?`, presence, lastSeen, id)
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

// ResetPresence marks every user offline. Called on startup since no
// connection survives a restart.
func (db *DB) ResetPresence(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE users SET presence = 'offline' WHERE presence != 'offline'`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// UserCount returns the total number of users.
func (db *DB) UserCount(ctx context.Context) (int64, error) {
	var count int64
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}
