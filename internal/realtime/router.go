package realtime

import (
	"context"

	"github.com/matheus3301/hive/internal/auth"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/registry"
	"github.com/matheus3301/hive/internal/relay"
	"github.com/matheus3301/hive/internal/social"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Router dispatches one connection's inbound frames. The caller feeds frames
// in receipt order from a single goroutine, so a connection's intents are
// handled strictly one after another.
type Router struct {
	sessions *Sessions
	relay    *relay.Relay
	social   *social.Mutator
	rooms    *registry.Rooms
	fan      *fanout.Fanout
	metrics  *metrics.Metrics
	logger   *zap.Logger

	limit rate.Limit
	burst int
}

// NewRouter creates a Router. eventsPerSecond and burst size the
// per-connection limiter; a non-positive rate disables limiting.
func NewRouter(
	sessions *Sessions,
	rl *relay.Relay,
	sm *social.Mutator,
	rooms *registry.Rooms,
	fan *fanout.Fanout,
	m *metrics.Metrics,
	logger *zap.Logger,
	eventsPerSecond float64,
	burst int,
) *Router {
	limit := rate.Inf
	if eventsPerSecond > 0 {
		limit = rate.Limit(eventsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &Router{
		sessions: sessions,
		relay:    rl,
		social:   sm,
		rooms:    rooms,
		fan:      fan,
		metrics:  m,
		logger:   logger,
		limit:    limit,
		burst:    burst,
	}
}

// NewLimiter returns a fresh limiter for one connection.
func (r *Router) NewLimiter() *rate.Limiter {
	return rate.NewLimiter(r.limit, r.burst)
}

// Handle decodes and dispatches one raw frame from t. Failures are reported
// to t alone on the error event of the request's family.
func (r *Router) Handle(ctx context.Context, id auth.Identity, t registry.Transport, limiter *rate.Limiter, raw []byte) {
	req, err := protocol.Decode(raw)
	if err != nil {
		r.metrics.InboundEvent("invalid")
		r.fail(t, id, req, err)
		return
	}
	r.metrics.InboundEvent(req.Event)

	if limiter != nil && !limiter.Allow() {
		r.fail(t, id, req, fault.Validation(fault.RateLimited))
		return
	}
	if err := r.dispatch(ctx, id, t, req.Intent); err != nil {
		r.fail(t, id, req, err)
	}
}

func (r *Router) dispatch(ctx context.Context, id auth.Identity, t registry.Transport, intent protocol.Intent) error {
	switch in := intent.(type) {
	case protocol.Authenticate:
		// Already authenticated; a repeated handshake frame is ignored.
		return nil

	case protocol.JoinConversation:
		conv, err := r.relay.Authorize(ctx, id.ID, in.ConversationID)
		if err != nil {
			return err
		}
		r.rooms.Join(protocol.ConversationRoom(conv.ID), t)
		return nil

	case protocol.LeaveConversation:
		r.rooms.Leave(protocol.ConversationRoom(in.ConversationID), t)
		return nil

	case protocol.SendMessage:
		att := in.Attachment
		if att == nil && in.Image != "" {
			att = &protocol.Attachment{Kind: relay.TypeImage, URL: in.Image}
		}
		_, err := r.relay.Send(ctx, id.ID, relay.Input{
			ReceiverID:     in.ReceiverID,
			Text:           in.Text,
			Attachment:     att,
			Type:           in.Type,
			ConversationID: in.ConversationID,
		})
		return err

	case protocol.Typing:
		return r.relay.Typing(ctx, id.ID, in.ConversationID, in.IsTyping, t.ID())

	case protocol.MarkAsRead:
		return r.relay.MarkRead(ctx, id.ID, in.ConversationID)

	case protocol.ToggleLikePost:
		_, err := r.social.ToggleLikePost(ctx, id.ID, in.PostID)
		return err

	case protocol.ToggleFollow:
		_, err := r.social.ToggleFollow(ctx, id.ID, in.UserID)
		return err

	case protocol.NewComment:
		return r.social.RecordComment(ctx, id.ID, in.PostID, in.CommentID)

	case protocol.NewPostCreated:
		_, err := r.social.AnnouncePost(ctx, id.ID, social.PostSummary{ID: in.ID, Kind: in.Kind, Caption: in.Caption})
		return err

	case protocol.JoinPost:
		if in.PostID == "" {
			return fault.Validation(fault.PostNotFound)
		}
		r.rooms.Join(protocol.PostRoom(in.PostID), t)
		return nil

	case protocol.LeavePost:
		r.rooms.Leave(protocol.PostRoom(in.PostID), t)
		return nil

	case protocol.SetPresence:
		return r.sessions.SetPresence(ctx, id.ID, in.State)

	default:
		return fault.Validation(fault.UnknownEvent)
	}
}

func (r *Router) fail(t registry.Transport, id auth.Identity, req protocol.Request, err error) {
	fields := []zap.Field{
		zap.String("user_id", id.ID),
		zap.String("event", req.Event),
		zap.Error(err),
	}
	switch fault.KindOf(err) {
	case fault.KindValidation, fault.KindAuth:
		r.logger.Debug("request rejected", fields...)
	default:
		r.logger.Error("request failed", fields...)
	}
	_ = r.fan.To(t, protocol.ErrorFrame(protocol.ErrorEventFor(req.Event), err).Reply(req.Ref))
}
