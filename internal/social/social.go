package social

import (
	"context"
	"errors"
	"strings"

	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/notify"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

// Notifier creates notifications.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (*store.Notification, error)
	NotifyAll(ctx context.Context, recipients []string, tmpl notify.Request) (int, error)
}

// FollowResult is the graph after a follow toggle.
type FollowResult struct {
	Following      bool
	FollowersCount int
	FollowingCount int
}

// LikeResult is a post's like state after a toggle.
type LikeResult struct {
	PostID     string
	Liked      bool
	LikesCount int
}

// PostSummary describes a freshly published post or reel.
type PostSummary struct {
	ID      string
	Kind    string
	Caption string
}

// Mutator toggles follow and like edges and announces posts. Notifications
// fire only on false to true transitions.
type Mutator struct {
	db       *store.DB
	notifier Notifier
	fan      *fanout.Fanout
	bus      *bus.Bus
	logger   *zap.Logger
}

// New creates a Mutator.
func New(db *store.DB, notifier Notifier, fan *fanout.Fanout, b *bus.Bus, logger *zap.Logger) *Mutator {
	return &Mutator{db: db, notifier: notifier, fan: fan, bus: b, logger: logger}
}

// ToggleFollow flips actor -> target. Both sides of the edge change in one
// transaction.
func (m *Mutator) ToggleFollow(ctx context.Context, actorID, targetID string) (*FollowResult, error) {
	targetID = strings.TrimSpace(targetID)
	if targetID == "" {
		return nil, fault.Validation(fault.UserNotFound)
	}
	if actorID == targetID {
		return nil, fault.Validation(fault.SelfFollow)
	}
	ok, err := m.db.UserExists(ctx, targetID)
	if err != nil {
		return nil, fault.Persistence("lookup user", err)
	}
	if !ok {
		return nil, fault.Validation(fault.UserNotFound)
	}

	st, err := m.db.ToggleFollow(ctx, actorID, targetID)
	if err != nil {
		return nil, fault.Persistence("toggle follow", err)
	}
	res := &FollowResult{Following: st.Following, FollowersCount: st.FollowersCount, FollowingCount: st.FollowingCount}

	if res.Following {
		m.notifyAfterCommit(ctx, "follow", notify.Request{RecipientID: targetID, SenderID: actorID, Type: notify.TypeFollow})
	}

	payload := protocol.FollowUpdated{
		FollowerID:     actorID,
		FolloweeID:     targetID,
		Following:      res.Following,
		FollowersCount: res.FollowersCount,
		FollowingCount: res.FollowingCount,
	}
	m.bus.Emit(bus.FollowToggled, payload)
	m.fan.Deliver(protocol.Frame{Event: protocol.EventFollowUpdated, Data: payload}, fanout.Targets{
		Users: []string{actorID, targetID},
	})
	return res, nil
}

// ToggleLikePost flips actor's like on a post. Liking one's own post is
// rejected without touching state.
func (m *Mutator) ToggleLikePost(ctx context.Context, actorID, postID string) (*LikeResult, error) {
	post, err := m.post(ctx, postID)
	if err != nil {
		return nil, err
	}
	if post.OwnerID == actorID {
		return nil, fault.Validation(fault.SelfLike)
	}

	st, err := m.db.ToggleLike(ctx, post.ID, actorID)
	if err != nil {
		return nil, fault.Persistence("toggle like", err)
	}
	res := &LikeResult{PostID: post.ID, Liked: st.Liked, LikesCount: st.LikesCount}

	if res.Liked {
		m.notifyAfterCommit(ctx, "like", notify.Request{
			RecipientID: post.OwnerID,
			SenderID:    actorID,
			Type:        notify.TypeLike,
			PostID:      post.ID,
		})
	}

	payload := protocol.PostLiked{PostID: post.ID, UserID: actorID, Liked: res.Liked, LikesCount: res.LikesCount}
	m.bus.Emit(bus.LikeToggled, payload)
	m.fan.Deliver(protocol.Frame{Event: protocol.EventPostLiked, Data: payload}, fanout.Targets{
		Users: []string{actorID, post.OwnerID},
		Rooms: []string{protocol.PostRoom(post.ID)},
	})
	return res, nil
}

// RecordComment tells the post owner and the post room about a new comment.
// The comment itself is stored by the REST layer.
func (m *Mutator) RecordComment(ctx context.Context, actorID, postID, commentID string) error {
	post, err := m.post(ctx, postID)
	if err != nil {
		return err
	}
	if post.OwnerID != actorID {
		if _, err := m.notifier.Notify(ctx, notify.Request{
			RecipientID: post.OwnerID,
			SenderID:    actorID,
			Type:        notify.TypeComment,
			PostID:      post.ID,
			CommentID:   commentID,
		}); err != nil {
			return err
		}
	}

	m.fan.Deliver(protocol.Frame{
		Event: protocol.EventPostCommented,
		Data:  protocol.PostCommented{PostID: post.ID, CommentID: commentID, UserID: actorID},
	}, fanout.Targets{
		Users: []string{post.OwnerID},
		Rooms: []string{protocol.PostRoom(post.ID)},
	})
	return nil
}

// AnnouncePost records a post owned by actor and notifies each follower. It
// returns the number of followers notified.
func (m *Mutator) AnnouncePost(ctx context.Context, actorID string, p PostSummary) (int, error) {
	if strings.TrimSpace(p.ID) == "" {
		return 0, fault.Validation(fault.PostNotFound)
	}
	kind := p.Kind
	if kind == "" {
		kind = notify.TypePost
	}
	if kind != notify.TypePost && kind != notify.TypeReel {
		return 0, fault.Validation(fault.BadPayload)
	}

	existing, err := m.db.GetPost(ctx, p.ID)
	switch {
	case err == nil && existing.OwnerID != actorID:
		return 0, fault.Validation(fault.PostNotFound)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return 0, fault.Persistence("get post", err)
	}
	if err := m.db.UpsertPost(ctx, &store.Post{ID: p.ID, OwnerID: actorID, Kind: kind, Caption: p.Caption}); err != nil {
		return 0, fault.Persistence("upsert post", err)
	}

	followers, err := m.db.Followers(ctx, actorID)
	if err != nil {
		return 0, fault.Persistence("list followers", err)
	}
	m.bus.Emit(bus.PostAnnounced, protocol.PostAnnounced{PostID: p.ID, OwnerID: actorID, Kind: kind, Followers: len(followers)})

	return m.notifier.NotifyAll(ctx, followers, notify.Request{SenderID: actorID, Type: kind, PostID: p.ID})
}

func (m *Mutator) post(ctx context.Context, postID string) (*store.Post, error) {
	if strings.TrimSpace(postID) == "" {
		return nil, fault.Validation(fault.PostNotFound)
	}
	post, err := m.db.GetPost(ctx, postID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validation(fault.PostNotFound)
	}
	if err != nil {
		return nil, fault.Persistence("get post", err)
	}
	return post, nil
}

// notifyAfterCommit runs after the edge is committed. A failure leaves the
// graph and the notification history out of step, which is reported but
// does not undo the toggle.
func (m *Mutator) notifyAfterCommit(ctx context.Context, edge string, req notify.Request) {
	if _, err := m.notifier.Notify(ctx, req); err != nil {
		m.logger.Error("consistency alert: edge committed without notification",
			zap.String("edge", edge),
			zap.String("actor_id", req.SenderID),
			zap.String("recipient_id", req.RecipientID),
			zap.Error(err))
	}
}
