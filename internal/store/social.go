package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// FollowState is the graph after a follow toggle.
type FollowState struct {
	Following      bool
	FollowersCount int // followers of the followee
	FollowingCount int // accounts the follower follows
}

// ToggleFollow flips the follower -> followee edge in one transaction and
// returns the resulting state.
func (db *DB) ToggleFollow(ctx context.Context, followerID, followeeID string) (*FollowState, error) {
	var st FollowState
	err := db.InTx(ctx, func(tx *Tx) error {
		var exists bool
		if err := tx.tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = ? AND followee_id = ?)`,
			followerID, followeeID).Scan(&exists); err != nil {
			return fmt.Errorf("read edge: %w", err)
		}

		if exists {
			if _, err := tx.tx.ExecContext(ctx, `
				DELETE FROM follows WHERE follower_id = ? AND followee_id = ?`, followerID, followeeID); err != nil {
				return fmt.Errorf("delete edge: %w", err)
			}
		} else {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO follows (follower_id, followee_id, created_at) VALUES (?, ?, ?)`,
				followerID, followeeID, time.Now().UnixMilli()); err != nil {
				return fmt.Errorf("insert edge: %w", err)
			}
		}
		st.Following = !exists

		if err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM follows WHERE followee_id = ?`, followeeID).
			Scan(&st.FollowersCount); err != nil {
			return fmt.Errorf("count followers: %w", err)
		}
		if err := tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM follows WHERE follower_id = ?`, followerID).
			Scan(&st.FollowingCount); err != nil {
			return fmt.Errorf("count following: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}

// IsFollowing reports whether followerID follows followeeID.
func (db *DB) IsFollowing(ctx context.Context, followerID, followeeID string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx, `
		SELECT EXISTS(SELECT 1 FROM follows WHERE follower_id = ? AND followee_id = ?)`,
		followerID, followeeID).Scan(&exists)
	return exists, err
}

// Followers returns the ids following userID, oldest edge first.
func (db *DB) Followers(ctx context.Context, userID string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT follower_id FROM follows WHERE followee_id = ? ORDER BY created_at ASC, follower_id ASC`, userID)
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

// UpsertPost records a post. The owner of an existing post never changes.
func (db *DB) UpsertPost(ctx context.Context, p *Post) error {
	if p.Kind == "" {
		p.Kind = "post"
	}
	if p.CreatedAt == 0 {
		p.CreatedAt = time.Now().UnixMilli()
	}
	_, err := db.ExecContext(ctx, `
		INSERT INTO posts (id, owner_id, kind, caption, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET caption = excluded.caption`,
		p.ID, p.OwnerID, p.Kind, p.Caption, p.CreatedAt)
	return err
}

// GetPost returns a post by id, or ErrNotFound.
func (db *DB) GetPost(ctx context.Context, id string) (*Post, error) {
	var p Post
	err := db.QueryRowContext(ctx, `
		SELECT id, owner_id, kind, caption, created_at FROM posts WHERE id = ?`, id).
		Scan(&p.ID, &p.OwnerID, &p.Kind, &p.Caption, &p.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// LikeState is a post's like state after a toggle.
type LikeState struct {
	Liked      bool
	LikesCount int
}

// ToggleLike flips userID's like on postID in one transaction.
func (db *DB) ToggleLike(ctx context.Context, postID, userID string) (*LikeState, error) {
	var st LikeState
	err := db.InTx(ctx, func(tx *Tx) error {
		var exists bool
		if err := tx.tx.QueryRowContext(ctx, `
			SELECT EXISTS(SELECT 1 FROM post_likes WHERE post_id = ? AND user_id = ?)`,
			postID, userID).Scan(&exists); err != nil {
			return fmt.Errorf("read like: %w", err)
		}

		if exists {
			if _, err := tx.tx.ExecContext(ctx, `
				DELETE FROM post_likes WHERE post_id = ? AND user_id = ?`, postID, userID); err != nil {
				return fmt.Errorf("delete like: %w", err)
			}
		} else {
			if _, err := tx.tx.ExecContext(ctx, `
				INSERT INTO post_likes (post_id, user_id, created_at) VALUES (?, ?, ?)`,
				postID, userID, time.Now().UnixMilli()); err != nil {
				return fmt.Errorf("insert like: %w", err)
			}
		}
		st.Liked = !exists

		return tx.tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM post_likes WHERE post_id = ?`, postID).
			Scan(&st.LikesCount)
	})
	if err != nil {
		return nil, err
	}
	return &st, nil
}
