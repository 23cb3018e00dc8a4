package protocol

// Inbound event names.
const (
	EventAuthenticate      = "authenticate"
	EventJoinConversation  = "joinConversation"
	EventLeaveConversation = "leaveConversation"
	EventSendMessage       = "sendMessage"
	EventTyping            = "typing"
	EventMarkAsRead        = "markAsRead"
	EventToggleLikePost    = "toggleLikePost"
	EventToggleFollow      = "toggleFollow"
	EventNewComment        = "newComment"
	EventNewPostCreated    = "newPostCreated"
	EventJoinPost          = "joinPost"
	EventLeavePost         = "leavePost"
	EventSetPresence       = "setPresence"
)

// Outbound event names.
const (
	EventOnlineUsers       = "onlineUsers"
	EventNewMessage        = "newMessage"
	EventNewNotification   = "newNotification"
	EventUserStatusChanged = "userStatusChanged"
	EventPostLiked         = "postLiked"
	EventPostCommented     = "postCommented"
	EventFollowUpdated     = "followUpdated"
	EventMessagesRead      = "messagesRead"
	EventForceDisconnect   = "forceDisconnect"
	EventConnected         = "connected"

	EventMessageError = "messageError"
	EventPostError    = "postError"
	EventFollowError  = "followError"
	EventConnectError = "connectError"
	EventError        = "error"
)

// Room name prefixes.
const (
	conversationRoomPrefix = "conversation:"
	postRoomPrefix         = "post:"
)

// ConversationRoom returns the room subscribers of a conversation join.
func ConversationRoom(conversationID string) string {
	return conversationRoomPrefix + conversationID
}

// PostRoom returns the room that follows live reactions on a post.
func PostRoom(postID string) string {
	return postRoomPrefix + postID
}
