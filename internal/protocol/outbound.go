package protocol

import (
	"encoding/json"

	"github.com/matheus3301/hive/internal/fault"
	"github.com/matheus3301/hive/internal/store"
)

// Frame is one server-to-client event.
type Frame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
	Ref   string `json:"ref,omitempty"`
}

// Encode renders the frame as JSON.
func (f Frame) Encode() ([]byte, error) {
	return json.Marshal(f)
}

// Reply returns a copy of f that echoes ref.
func (f Frame) Reply(ref string) Frame {
	f.Ref = ref
	return f
}

type Message struct {
	ID             string      `json:"id"`
	ConversationID string      `json:"conversationId"`
	SenderID       string      `json:"senderId"`
	ReceiverID     string      `json:"receiverId"`
	Text           string      `json:"text,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Type           string      `json:"type"`
	Read           bool        `json:"read"`
	CreatedAt      int64       `json:"createdAt"`
}

type Notification struct {
	ID           string `json:"id"`
	RecipientID  string `json:"recipientId"`
	SenderID     string `json:"senderId"`
	SenderHandle string `json:"senderHandle,omitempty"`
	Type         string `json:"type"`
	PostID       string `json:"postId,omitempty"`
	CommentID    string `json:"commentId,omitempty"`
	MessageID    string `json:"messageId,omitempty"`
	Read         bool   `json:"read"`
	CreatedAt    int64  `json:"createdAt"`
}

type UserStatus struct {
	UserID   string `json:"userId"`
	Status   string `json:"status"`
	LastSeen int64  `json:"lastSeen"`
}

type PostLiked struct {
	PostID     string `json:"postId"`
	UserID     string `json:"userId"`
	Liked      bool   `json:"liked"`
	LikesCount int    `json:"likesCount"`
}

type PostCommented struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
	UserID    string `json:"userId"`
}

// PostAnnounced is journaled when a post or reel reaches its owner's
// followers.
type PostAnnounced struct {
	PostID    string `json:"postId"`
	OwnerID   string `json:"ownerId"`
	Kind      string `json:"kind"`
	Followers int    `json:"followers"`
}

type FollowUpdated struct {
	FollowerID     string `json:"followerId"`
	FolloweeID     string `json:"followeeId"`
	Following      bool   `json:"following"`
	FollowersCount int    `json:"followersCount"`
	FollowingCount int    `json:"followingCount"`
}

type MessagesRead struct {
	ConversationID string `json:"conversationId"`
	ReaderID       string `json:"readerId"`
	ReadAt         int64  `json:"readAt"`
}

type TypingStatus struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	IsTyping       bool   `json:"isTyping"`
}

type Connected struct {
	UserID string `json:"userId"`
	Handle string `json:"handle,omitempty"`
}

type ErrorBody struct {
	Error string `json:"error"`
}

type Reason struct {
	Reason string `json:"reason"`
}

// MessageOf converts a stored message to its wire form.
func MessageOf(m *store.Message) Message {
	out := Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		ReceiverID:     m.ReceiverID,
		Text:           m.Body,
		Type:           m.Type,
		Read:           m.Read,
		CreatedAt:      m.CreatedAt,
	}
	if m.AttachmentURL != "" {
		out.Attachment = &Attachment{Kind: m.AttachmentKind, URL: m.AttachmentURL}
	}
	return out
}

// NotificationOf converts a stored notification to its wire form.
func NotificationOf(n *store.Notification, senderHandle string) Notification {
	return Notification{
		ID:           n.ID,
		RecipientID:  n.RecipientID,
		SenderID:     n.SenderID,
		SenderHandle: senderHandle,
		Type:         n.Type,
		PostID:       n.PostID,
		CommentID:    n.CommentID,
		MessageID:    n.MessageID,
		Read:         n.Read,
		CreatedAt:    n.CreatedAt,
	}
}

func NewMessage(m *store.Message) Frame {
	return Frame{Event: EventNewMessage, Data: MessageOf(m)}
}

func NewNotification(n *store.Notification, senderHandle string) Frame {
	return Frame{Event: EventNewNotification, Data: NotificationOf(n, senderHandle)}
}

func OnlineUsers(ids []string) Frame {
	if ids == nil {
		ids = []string{}
	}
	return Frame{Event: EventOnlineUsers, Data: ids}
}

func UserStatusChanged(userID, status string, lastSeen int64) Frame {
	return Frame{Event: EventUserStatusChanged, Data: UserStatus{UserID: userID, Status: status, LastSeen: lastSeen}}
}

func ForceDisconnect(reason string) Frame {
	return Frame{Event: EventForceDisconnect, Data: Reason{Reason: reason}}
}

// ErrorFrame reports err on the given error event. Only the public reason is
// exposed.
func ErrorFrame(event string, err error) Frame {
	return Frame{Event: event, Data: ErrorBody{Error: fault.Public(err)}}
}
