package relay

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/hive/internal/bus"
	"github.com/matheus3301/hive/internal/fanout"
	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/metrics"
	"github.com/matheus3301/hive/internal/notify"
	"github.com/matheus3301/hive/internal/protocol"
	"github.com/matheus3301/hive/internal/store"
	"go.uber.org/zap"
)

// Message type tags.
const (
	TypeText   = "text"
	TypeImage  = "image"
	TypeVoice  = "voice"
	TypeFile   = "file"
	TypeSystem = "system"
)

var knownTypes = map[string]bool{
	TypeText: true, TypeImage: true, TypeVoice: true, TypeFile: true, TypeSystem: true,
}

// Conversations is the conversation gateway as the relay uses it.
type Conversations interface {
	FindOrCreate(ctx context.Context, a, b string) (*store.Conversation, error)
	Get(ctx context.Context, id string) (*store.Conversation, error)
	Record(ctx context.Context, msg *store.Message) error
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)
}

// Users answers whether an identity exists.
type Users interface {
	UserExists(ctx context.Context, id string) (bool, error)
}

// Notifier creates notifications.
type Notifier interface {
	Notify(ctx context.Context, req notify.Request) (*store.Notification, error)
}

// Input is a message as submitted by its sender.
type Input struct {
	ReceiverID     string
	Text           string
	Attachment     *protocol.Attachment
	Type           string
	ConversationID string
}

// Relay validates, persists and fans out chat messages. Nothing is delivered
// unless it was stored first.
type Relay struct {
	convs       Conversations
	users       Users
	notifier    Notifier
	fan         *fanout.Fanout
	bus         *bus.Bus
	metrics     *metrics.Metrics
	logger      *zap.Logger
	sendTimeout time.Duration
}

// New creates a Relay. sendTimeout bounds each Send; zero disables the bound.
func New(convs Conversations, users Users, notifier Notifier, fan *fanout.Fanout, b *bus.Bus, m *metrics.Metrics, logger *zap.Logger, sendTimeout time.Duration) *Relay {
	return &Relay{
		convs:       convs,
		users:       users,
		notifier:    notifier,
		fan:         fan,
		bus:         b,
		metrics:     m,
		logger:      logger,
		sendTimeout: sendTimeout,
	}
}

// Send runs the validate, persist and fan-out pipeline for one message.
func (r *Relay) Send(ctx context.Context, senderID string, in Input) (*store.Message, error) {
	if r.sendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.sendTimeout)
		defer cancel()
	}

	typ, err := validate(senderID, &in)
	if err != nil {
		return nil, err
	}

	ok, err := r.users.UserExists(ctx, in.ReceiverID)
	if err != nil {
		return nil, fault.Persistence("lookup receiver", err)
	}
	if !ok {
		return nil, fault.Validation(fault.UserNotFound)
	}

	conv, err := r.convs.FindOrCreate(ctx, senderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}
	if in.ConversationID != "" && in.ConversationID != conv.ID {
		return nil, fault.Validation(fault.ConversationMismatch)
	}

	msg := &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conv.ID,
		SenderID:       senderID,
		ReceiverID:     in.ReceiverID,
		Body:           in.Text,
		Type:           typ,
		CreatedAt:      time.Now().UnixMilli(),
	}
	if in.Attachment != nil {
		msg.AttachmentKind = in.Attachment.Kind
		msg.AttachmentURL = in.Attachment.URL
	}
	if err := r.convs.Record(ctx, msg); err != nil {
		if fault.KindOf(err) == "" {
			err = fault.Persistence("record message", err)
		}
		return nil, err
	}
	r.metrics.MessagePersisted()
	r.bus.Emit(bus.MessageCreated, protocol.MessageOf(msg))

	r.fan.Deliver(protocol.NewMessage(msg), fanout.Targets{
		Users: []string{senderID, in.ReceiverID},
		Rooms: []string{protocol.ConversationRoom(conv.ID)},
	})

	if msg.Type != TypeSystem {
		if _, err := r.notifier.Notify(ctx, notify.Request{
			RecipientID: msg.ReceiverID,
			SenderID:    msg.SenderID,
			Type:        notify.TypeMessage,
			MessageID:   msg.ID,
		}); err != nil {
			r.logger.Error("message notification failed",
				zap.String("message_id", msg.ID),
				zap.String("receiver_id", msg.ReceiverID),
				zap.Error(err))
		}
	}
	return msg, nil
}

func validate(senderID string, in *Input) (string, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	if in.ReceiverID == "" {
		return "", fault.Validation(fault.MissingReceiver)
	}
	if in.ReceiverID == senderID {
		return "", fault.Validation(fault.SelfMessage)
	}
	if in.Attachment != nil && in.Attachment.URL == "" {
		in.Attachment = nil
	}
	if strings.TrimSpace(in.Text) == "" && in.Attachment == nil {
		return "", fault.Validation(fault.EmptyMessage)
	}

	typ := in.Type
	if typ == "" {
		typ = TypeText
		if in.Attachment != nil && knownTypes[in.Attachment.Kind] {
			typ = in.Attachment.Kind
		}
	}
	if !knownTypes[typ] {
		return "", fault.Validation(fault.UnknownMessageType)
	}
	if in.Attachment != nil && in.Attachment.Kind == "" {
		in.Attachment.Kind = typ
	}
	return typ, nil
}

// Authorize fails unless userID takes part in the conversation.
func (r *Relay) Authorize(ctx context.Context, userID, conversationID string) (*store.Conversation, error) {
	if conversationID == "" {
		return nil, fault.Validation(fault.ConversationNotFound)
	}
	conv, err := r.convs.Get(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.Has(userID) {
		return nil, fault.Validation(fault.NotParticipant)
	}
	return conv, nil
}

// MarkRead zeroes the reader's unread counter, flags the messages addressed
// to them and tells the other participant and the conversation room.
func (r *Relay) MarkRead(ctx context.Context, readerID, conversationID string) error {
	conv, err := r.Authorize(ctx, readerID, conversationID)
	if err != nil {
		return err
	}
	at, err := r.convs.MarkRead(ctx, conv.ID, readerID)
	if err != nil {
		return err
	}

	payload := protocol.MessagesRead{ConversationID: conv.ID, ReaderID: readerID, ReadAt: at}
	r.bus.Emit(bus.ConversationRead, payload)
	r.fan.Deliver(protocol.Frame{Event: protocol.EventMessagesRead, Data: payload}, fanout.Targets{
		Users: []string{conv.Other(readerID)},
		Rooms: []string{protocol.ConversationRoom(conv.ID)},
	})
	return nil
}

// Typing relays a typing indicator to the other members of the conversation
// room. Only participants may type; origin is the sending transport and never
// hears its own indicator. Nothing is persisted.
func (r *Relay) Typing(ctx context.Context, userID, conversationID string, isTyping bool, origin string) error {
	conv, err := r.Authorize(ctx, userID, conversationID)
	if err != nil {
		return err
	}
	r.fan.Deliver(protocol.Frame{
		Event: protocol.EventTyping,
		Data:  protocol.TypingStatus{ConversationID: conv.ID, UserID: userID, IsTyping: isTyping},
	}, fanout.Targets{
		Rooms:            []string{protocol.ConversationRoom(conv.ID)},
		Exclude:          []string{userID},
		ExcludeTransport: origin,
	})
	return nil
}
