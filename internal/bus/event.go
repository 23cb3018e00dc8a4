package bus

import "time"

// Event kinds published by the realtime core. The prefix before the first
// dot is the namespace subscribers filter on.
const (
	PresenceChanged     = "presence.changed"
	MessageCreated      = "message.created"
	ConversationRead    = "conversation.read"
	NotificationCreated = "notification.created"
	FollowToggled       = "social.follow_toggled"
	LikeToggled         = "social.like_toggled"
	PostAnnounced       = "social.post_announced"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Namespace returns the part of the kind up to and including the first dot.
func (e Event) Namespace() string {
	for i := 0; i < len(e.Kind); i++ {
		if e.Kind[i] == '.' {
			return e.Kind[:i+1]
		}
	}
	return e.Kind
}
