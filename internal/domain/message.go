package domain

// Role identifies which side of the conversation authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// MessageStatus is the lifecycle state of a display message. Pending
// only while a send is in flight; error only after a failed send.
type MessageStatus string

const (
	StatusSuccess MessageStatus = "success"
	StatusError   MessageStatus = "error"
	StatusPending MessageStatus = "pending"
)

// DisplayMessage is a unit of conversation shown to the user.
// CreatedAt doubles as the list key on the client, so it must be
// unique and non-decreasing within a transcript.
type DisplayMessage struct {
	Text          string        `json:"text"`
	CreatedAt     int64         `json:"created_at"` // Unix seconds
	Role          Role          `json:"role"`
	Status        MessageStatus `json:"status"`
	IsLatestReply bool          `json:"is_latest_reply"`
	AuthorID      string        `json:"author_id,omitempty"`
}

// HistoryMessage is one side of a backend-supplied message pair.
type HistoryMessage struct {
	Content   string `json:"content"`
	CreatedAt int64  `json:"created_at"` // Unix seconds
	AuthorID  string `json:"author_id,omitempty"`
}

// HistoryMessagePair is the backend's storage unit: a user message and
// the assistant reply it produced. Immutable once fetched.
type HistoryMessagePair struct {
	User      HistoryMessage `json:"user"`
	Assistant HistoryMessage `json:"assistant"`
}

// Character is the scripted persona a conversation or chatroom is
// bound to. FirstMessage may contain {{char}} and {{user}} placeholder
// tokens.
type Character struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	FirstMessage string   `json:"first_message"`
	AvatarURL    string   `json:"avatar_url,omitempty"`
	Tags         []string `json:"tags,omitempty"`
}

// Conversation is the metadata of a one-on-one chat with a character.
type Conversation struct {
	ID          string `json:"id"`
	CharacterID string `json:"character_id"`
	UserID      string `json:"user_id"`
	CreatedAt   int64  `json:"created_at"` // Unix seconds
}

// UserProfile resolves a user id to display material.
type UserProfile struct {
	ID            string `json:"id"`
	Username      string `json:"username"`
	AvatarURL     string `json:"avatar_url,omitempty"`
	WalletAddress string `json:"wallet_address,omitempty"`
}

// SendMessageRequest is the request body for message send and retry.
type SendMessageRequest struct {
	Text string `json:"text" binding:"required,min=1,max=4000"`
}

// TranscriptResponse wraps a rendered transcript.
type TranscriptResponse struct {
	ConversationID string           `json:"conversation_id"`
	Messages       []DisplayMessage `json:"messages"`
}
