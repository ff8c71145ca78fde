package domain

// Upstream SSE event names, as emitted by the backend's chatroom
// stream. Arrival of any of these is a trigger to re-fetch the
// corresponding state, never a full state replacement.
const (
	EventMessageReceived  = "messageReceived"
	EventResponseReceived = "responseReceived"
	EventJoinChatroom     = "joinChatroom"
	EventLeaveChatroom    = "leaveChatroom"
	EventHijackRegistered = "hijackRegistered"
	EventHijackSucceeded  = "hijackSucceeded"
	EventChatroomWrapped  = "chatroomWrapped"
)

// KnownEvent reports whether name is an event the gateway reacts to.
func KnownEvent(name string) bool {
	switch name {
	case EventMessageReceived, EventResponseReceived,
		EventJoinChatroom, EventLeaveChatroom,
		EventHijackRegistered, EventHijackSucceeded,
		EventChatroomWrapped:
		return true
	}
	return false
}

// MessageReceivedPayload accompanies messageReceived and responseReceived.
type MessageReceivedPayload struct {
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id,omitempty"`
}

// PresencePayload accompanies joinChatroom and leaveChatroom.
type PresencePayload struct {
	UserID string `json:"user_id"`
}

// HijackRegisteredPayload accompanies hijackRegistered.
type HijackRegisteredPayload struct {
	UserID             string `json:"user_id"`
	Cost               int64  `json:"cost"`
	CountdownRemaining int    `json:"countdown_remaining,omitempty"`
}

// HijackSucceededPayload accompanies hijackSucceeded.
type HijackSucceededPayload struct {
	UserID string `json:"user_id"`
}

// Session activity kinds emitted to the activity topic for downstream
// points accounting.
const (
	ActivityMessageSent     = "message_sent"
	ActivityMessageRetried  = "message_retried"
	ActivityRegenerate      = "regenerate"
	ActivityHijackBid       = "hijack_bid"
	ActivityHijackDefended  = "hijack_defended"
	ActivityHijackSucceeded = "hijack_succeeded"
	ActivityChatroomWrapped = "chatroom_wrapped"
)

// SessionActivity is one billable or score-relevant action taken in a
// session, published to Kafka for the points pipeline.
type SessionActivity struct {
	Kind           string `json:"kind"`
	UserID         string `json:"user_id"`
	ConversationID string `json:"conversation_id,omitempty"`
	ChatroomID     string `json:"chatroom_id,omitempty"`
	Cost           int64  `json:"cost,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

// PartitionKey returns the key used for Kafka partition assignment so
// one room's activity stays ordered.
func (a *SessionActivity) PartitionKey() string {
	if a.ChatroomID != "" {
		return a.ChatroomID
	}
	return a.ConversationID
}
