package fault

import (
	"errors"
	"fmt"
)

// Kind classifies a failure by how it propagates.
type Kind string

const (
	// KindAuth rejects a connection before any state is created.
	KindAuth Kind = "auth"
	// KindValidation rejects a single request; only the originating connection hears about it.
	KindValidation Kind = "validation"
	// KindPersistence aborts the whole operation before any delivery.
	KindPersistence Kind = "persistence"
	// KindDelivery is a failed push to one live connection. It never aborts the operation.
	KindDelivery Kind = "delivery"
)

// Reasons carried by Auth and Validation errors.
const (
	MissingToken     = "missing_token"
	InvalidToken     = "invalid_token"
	HandshakeTimeout = "handshake_timeout"

	MissingReceiver         = "missing_receiver"
	SelfMessage             = "self_message"
	EmptyMessage            = "empty_message"
	UnknownMessageType      = "unknown_message_type"
	SelfNotification        = "self_notification"
	UnknownNotificationType = "unknown_notification_type"
	SelfFollow              = "self_follow"
	SelfLike                = "self_like"
	UserNotFound            = "user_not_found"
	PostNotFound            = "post_not_found"
	ConversationNotFound    = "conversation_not_found"
	NotParticipant          = "not_participant"
	ConversationMismatch    = "conversation_mismatch"
	InvalidParticipants     = "invalid_participants"
	UnknownEvent            = "unknown_event"
	BadPayload              = "bad_payload"
	RateLimited             = "rate_limited"
	InvalidPresence         = "invalid_presence"
)

// Error is the single error type crossing component boundaries.
type Error struct {
	Kind   Kind
	Reason string
	Cause  error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Cause }

// Auth builds an authentication failure.
func Auth(reason string) error {
	return &Error{Kind: KindAuth, Reason: reason}
}

// AuthCause builds an authentication failure keeping the verifier's error.
func AuthCause(reason string, cause error) error {
	return &Error{Kind: KindAuth, Reason: reason, Cause: cause}
}

// Validation builds a request rejection.
func Validation(reason string) error {
	return &Error{Kind: KindValidation, Reason: reason}
}

// Persistence wraps a store failure; op names what was being written or read.
func Persistence(op string, cause error) error {
	return &Error{Kind: KindPersistence, Reason: op, Cause: cause}
}

// Delivery wraps a failed push to target.
func Delivery(target string, cause error) error {
	return &Error{Kind: KindDelivery, Reason: target, Cause: cause}
}

// KindOf returns the kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// ReasonOf returns the reason of the first *Error in err's chain.
func ReasonOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Reason
	}
	return ""
}

// Is reports whether err carries the given kind and, when reason is non-empty, that reason.
func Is(err error, kind Kind, reason string) bool {
	var fe *Error
	if !errors.As(err, &fe) {
		return false
	}
	return fe.Kind == kind && (reason == "" || fe.Reason == reason)
}

// Public renders err for the originating client. Persistence and unknown
// failures collapse to a generic text so internals never leak.
func Public(err error) string {
	var fe *Error
	if !errors.As(err, &fe) {
		return "internal error"
	}
	switch fe.Kind {
	case KindAuth, KindValidation:
		return fe.Reason
	case KindPersistence:
		return "storage unavailable"
	case KindDelivery:
		return "delivery failed"
	default:
		return "internal error"
	}
}
