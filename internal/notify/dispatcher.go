package notify

import (
	"context"
	"errors"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Notification types.
const (
	TypeFollow  = "follow"
	TypeLike    = "like"
	TypeComment = "comment"
	TypeMessage = "message"
	TypePost    = "post"
	TypeReel    = "reel"
	TypeMention = "mention"
	TypeShare   = "share"
)

var knownTypes = map[string]bool{
	TypeFollow: true, TypeLike: true, TypeComment: true, TypeMessage: true,
	TypePost: true, TypeReel: true, TypeMention: true, TypeShare: true,
}

// Request describes one notification to create.
type Request struct {
	RecipientID string
	SenderID    string
	Type        string
	PostID      string
	CommentID   string
	MessageID   string
}

// Dispatcher persists notifications and pushes them to live recipients.
// It does not deduplicate: callers only notify on real state transitions.
type Dispatcher struct {
	db      *store.DB
	fan     *fanout.Fanout
	bus     *bus.Bus
	metrics *metrics.Metrics
	logger  *zap.Logger
	workers int
}

// NewDispatcher creates a Dispatcher. workers bounds NotifyAll's concurrency.
func NewDispatcher(db *store.DB, fan *fanout.Fanout, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{db: db, fan: fan, bus: b, metrics: m, logger: logger, workers: workers}
}

// Notify validates, persists and, when the recipient is live, pushes one
// notification. A user is never notified about their own action.
func (d *Dispatcher) Notify(ctx context.Context, req Request) (*store.Notification, error) {
	if !knownTypes[req.Type] {
		return nil, fault.Validation(fault.UnknownNotificationType)
	}
	if req.RecipientID == "" {
		return nil, fault.Validation(fault.MissingReceiver)
	}
	if req.RecipientID == req.SenderID {
		return nil, fault.Validation(fault.SelfNotification)
	}

	n := &store.Notification{
		ID:          uuid.NewString(),
		RecipientID: req.RecipientID,
		SenderID:    req.SenderID,
		Type:        req.Type,
		PostID:      req.PostID,
		CommentID:   req.CommentID,
		MessageID:   req.MessageID,
	}
	if err := d.db.InsertNotification(ctx, n); err != nil {
		return nil, fault.Persistence("insert notification", err)
	}
	d.metrics.NotificationPersisted(n.Type)

	handle := d.senderHandle(ctx, req.SenderID)
	d.bus.Emit(bus.NotificationCreated, protocol.NotificationOf(n, handle))
	d.fan.Deliver(protocol.NewNotification(n, handle), fanout.Targets{Users: []string{n.RecipientID}})
	return n, nil
}

// NotifyAll sends tmpl to every recipient except the sender, duplicates
// collapsed. A failing recipient does not stop the others; the first error
// is returned with the number of notifications persisted.
func (d *Dispatcher) NotifyAll(ctx context.Context, recipients []string, tmpl Request) (int, error) {
	var (
		g    errgroup.Group
		sent atomic.Int64
		seen = make(map[string]struct{}, len(recipients))
	)
	g.SetLimit(d.workers)
	for _, r := range recipients {
		if r == tmpl.SenderID || r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}

		req := tmpl
		req.RecipientID = r
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if _, err := d.Notify(ctx, req); err != nil {
				d.logger.Error("notify recipient failed",
					zap.String("recipient_id", req.RecipientID),
					zap.String("type", req.Type),
					zap.Error(err))
				return err
			}
			sent.Add(1)
			return nil
		})
	}
	err := g.Wait()
	return int(sent.Load()), err
}

func (d *Dispatcher) senderHandle(ctx context.Context, senderID string) string {
	u, err := d.db.GetUser(ctx, senderID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			d.logger.Warn("sender lookup failed", zap.String("sender_id", senderID), zap.Error(err))
		}
		return ""
	}
	return u.Handle
}
