package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/store"
)

// Gateway is the persistence-facing side of pairwise conversations. Its only
// policy is that a conversation has exactly two distinct participants.
type Gateway struct {
	db *store.DB
}

// NewGateway creates a Gateway over db.
func NewGateway(db *store.DB) *Gateway {
	return &Gateway{db: db}
}

// FindOrCreate returns the conversation between a and b, creating it on
// first use. Concurrent calls for the same pair converge on one row.
func (g *Gateway) FindOrCreate(ctx context.Context, a, b string) (*store.Conversation, error) {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" || a == b {
		return nil, fault.Validation(fault.InvalidParticipants)
	}
	c, err := g.db.FindOrCreateConversation(ctx, a, b)
	if err != nil {
		return nil, fault.Persistence("find or create conversation", err)
	}
	return c, nil
}

// Get returns a conversation by id.
func (g *Gateway) Get(ctx context.Context, id string) (*store.Conversation, error) {
	c, err := g.db.GetConversation(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fault.Validation(fault.ConversationNotFound)
	}
	if err != nil {
		return nil, fault.Persistence("get conversation", err)
	}
	return c, nil
}

// IncrementUnread adds one to forUser's counter.
func (g *Gateway) IncrementUnread(ctx context.Context, conversationID, forUser string) error {
	if err := g.db.IncrementUnread(ctx, conversationID, forUser); err != nil {
		return fault.Persistence("increment unread", err)
	}
	return nil
}

// ClearUnread zeroes forUser's counter.
func (g *Gateway) ClearUnread(ctx context.Context, conversationID, forUser string) error {
	if err := g.db.ClearUnread(ctx, conversationID, forUser); err != nil {
		return fault.Persistence("clear unread", err)
	}
	return nil
}

// SetLastMessage moves the last-message pointer.
func (g *Gateway) SetLastMessage(ctx context.Context, conversationID, messageID string) error {
	err := g.db.SetLastMessage(ctx, conversationID, messageID)
	if errors.Is(err, store.ErrNotFound) {
		return fault.Validation(fault.ConversationNotFound)
	}
	if err != nil {
		return fault.Persistence("set last message", err)
	}
	return nil
}

// Unread returns forUser's counter; unknown participants read as 0.
func (g *Gateway) Unread(ctx context.Context, conversationID, forUser string) (int, error) {
	n, err := g.db.Unread(ctx, conversationID, forUser)
	if err != nil {
		return 0, fault.Persistence("read unread", err)
	}
	return n, nil
}

// Record stores msg, bumps the receiver's counter and moves the last-message
// pointer in one transaction. Nothing is written when any step fails.
func (g *Gateway) Record(ctx context.Context, msg *store.Message) error {
	err := g.db.InTx(ctx, func(tx *store.Tx) error {
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return err
		}
		if err := tx.IncrementUnread(ctx, msg.ConversationID, msg.ReceiverID); err != nil {
			return err
		}
		return tx.SetLastMessage(ctx, msg.ConversationID, msg.ID)
	})
	if err != nil {
		return fault.Persistence("record message", err)
	}
	return nil
}

// MarkRead zeroes readerID's counter and flags the messages addressed to
// them as read. It returns the read instant.
func (g *Gateway) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	at := time.Now().UnixMilli()
	if err := g.ClearUnread(ctx, conversationID, readerID); err != nil {
		return 0, err
	}
	if _, err := g.db.MarkConversationRead(ctx, conversationID, readerID, at); err != nil {
		return 0, fault.Persistence("mark messages read", err)
	}
	return at, nil
}
