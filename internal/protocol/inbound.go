package protocol

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/matheus3301/hive/internal/fault"
)

// Envelope is the wire shape of every client frame.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ref   string          `json:"ref,omitempty"`
}

// Intent is one decoded inbound event. The concrete type identifies the event.
type Intent interface {
	Event() string
}

// Request is a decoded client frame.
type Request struct {
	Event  string
	Ref    string
	Intent Intent
}

type Authenticate struct {
	Token string `json:"token"`
}

type JoinConversation struct {
	ConversationID string `json:"conversationId"`
}

type LeaveConversation struct {
	ConversationID string `json:"conversationId"`
}

// Attachment describes media carried by a message.
type Attachment struct {
	Kind string `json:"kind"` // image, voice, file
	URL  string `json:"url"`
}

type SendMessage struct {
	ReceiverID     string      `json:"receiverId"`
	Text           string      `json:"text,omitempty"`
	Image          string      `json:"image,omitempty"`
	Attachment     *Attachment `json:"attachment,omitempty"`
	Type           string      `json:"type,omitempty"`
	ConversationID string      `json:"conversationId,omitempty"`
}

type Typing struct {
	ConversationID string `json:"conversationId"`
	IsTyping       bool   `json:"isTyping"`
}

type MarkAsRead struct {
	ConversationID string `json:"conversationId"`
}

type ToggleLikePost struct {
	PostID string `json:"postId"`
}

type ToggleFollow struct {
	UserID string `json:"userId"`
}

type NewComment struct {
	PostID    string `json:"postId"`
	CommentID string `json:"commentId"`
}

// NewPostCreated announces a post or reel the sender just published.
type NewPostCreated struct {
	ID      string `json:"id"`
	Kind    string `json:"kind,omitempty"`
	Caption string `json:"caption,omitempty"`
}

type JoinPost struct {
	PostID string `json:"postId"`
}

type LeavePost struct {
	PostID string `json:"postId"`
}

type SetPresence struct {
	State string `json:"state"`
}

func (Authenticate) Event() string      { return EventAuthenticate }
func (JoinConversation) Event() string  { return EventJoinConversation }
func (LeaveConversation) Event() string { return EventLeaveConversation }
func (SendMessage) Event() string       { return EventSendMessage }
func (Typing) Event() string            { return EventTyping }
func (MarkAsRead) Event() string        { return EventMarkAsRead }
func (ToggleLikePost) Event() string    { return EventToggleLikePost }
func (ToggleFollow) Event() string      { return EventToggleFollow }
func (NewComment) Event() string        { return EventNewComment }
func (NewPostCreated) Event() string    { return EventNewPostCreated }
func (JoinPost) Event() string          { return EventJoinPost }
func (LeavePost) Event() string         { return EventLeavePost }
func (SetPresence) Event() string       { return EventSetPresence }

var decoders = map[string]func(json.RawMessage) (Intent, error){
	EventAuthenticate:      decodeAs[Authenticate],
	EventJoinConversation:  decodeAs[JoinConversation],
	EventLeaveConversation: decodeAs[LeaveConversation],
	EventSendMessage:       decodeAs[SendMessage],
	EventTyping:            decodeAs[Typing],
	EventMarkAsRead:        decodeAs[MarkAsRead],
	EventToggleLikePost:    decodeAs[ToggleLikePost],
	EventToggleFollow:      decodeAs[ToggleFollow],
	EventNewComment:        decodeAs[NewComment],
	EventNewPostCreated:    decodeAs[NewPostCreated],
	EventJoinPost:          decodeAs[JoinPost],
	EventLeavePost:         decodeAs[LeavePost],
	EventSetPresence:       decodeAs[SetPresence],
}

func decodeAs[T Intent](data json.RawMessage) (Intent, error) {
	var v T
	if len(bytes.TrimSpace(data)) == 0 || bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		return v, nil
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// Decode parses one client frame. Unknown events and malformed payloads are
// validation errors; the returned Request still carries the event name and
// ref when the envelope itself parsed.
func Decode(raw []byte) (Request, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return Request{}, fault.Validation(fault.BadPayload)
	}
	req := Request{Event: strings.TrimSpace(env.Event), Ref: env.Ref}
	dec, ok := decoders[req.Event]
	if !ok {
		return req, fault.Validation(fault.UnknownEvent)
	}
	intent, err := dec(env.Data)
	if err != nil {
		return req, fault.Validation(fault.BadPayload)
	}
	req.Intent = intent
	return req, nil
}

// ErrorEventFor returns the error event a failure of the given inbound event
// is reported on.
func ErrorEventFor(event string) string {
	switch event {
	case EventSendMessage, EventMarkAsRead, EventTyping, EventJoinConversation, EventLeaveConversation:
		return EventMessageError
	case EventToggleLikePost, EventNewComment, EventNewPostCreated, EventJoinPost, EventLeavePost:
		return EventPostError
	case EventToggleFollow:
		return EventFollowError
	case EventAuthenticate:
		return EventConnectError
	default:
		return EventError
	}
}
