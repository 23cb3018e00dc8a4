package store

// Presence values stored on users.presence.
const (
	PresenceOnline  = "online"
	PresenceOffline = "offline"
	PresenceAway    = "away"
)

// User is an identity known to the realtime core.
type User struct {
	ID        string
	Handle    string
	Presence  string
	LastSeen  int64
	CreatedAt int64
}

// Post is the subject of likes and comments. Posts are created by the REST
// surface or announced over the socket; the core only needs the owner.
type Post struct {
	ID        string
	OwnerID   string
	Kind      string // post, reel
	Caption   string
	CreatedAt int64
}

// Conversation is a pairwise thread. ParticipantA sorts before ParticipantB.
type Conversation struct {
	ID            string
	ParticipantA  string
	ParticipantB  string
	LastMessageID string
	CreatedAt     int64
	UpdatedAt     int64
}

// Participants returns both participant ids.
func (c *Conversation) Participants() [2]string {
	return [2]string{c.ParticipantA, c.ParticipantB}
}

// Has reports whether userID takes part in the conversation.
func (c *Conversation) Has(userID string) bool {
	return c.ParticipantA == userID || c.ParticipantB == userID
}

// Other returns the participant that is not userID.
func (c *Conversation) Other(userID string) string {
	if c.ParticipantA == userID {
		return c.ParticipantB
	}
	return c.ParticipantA
}

// ConversationSummary is a conversation as seen by one participant.
type ConversationSummary struct {
	Conversation
	Unread int
}

// Message is a persisted chat message. Only Read and ReadAt change after insert.
type Message struct {
	ID             string
	ConversationID string
	SenderID       string
	ReceiverID     string
	Body           string
	AttachmentKind string // image, voice, file
	AttachmentURL  string
	Type           string // text, image, voice, file, system
	Read           bool
	ReadAt         int64
	CreatedAt      int64
}

// Notification is a persisted notification record.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Type        string
	PostID      string
	CommentID   string
	MessageID   string
	Read        bool
	CreatedAt   int64
}

// OutboxEntry is a journaled domain event waiting to be exported.
type OutboxEntry struct {
	ID           int64
	EventID      string
	Topic        string
	Kind         string
	Payload      []byte
	Status       string // queued, sent, failed
	Attempts     int
	ErrorMessage string
	CreatedAt    int64
}
