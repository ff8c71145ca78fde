package domain

// ChatroomStatus represents chatroom lifecycle state.
type ChatroomStatus string

const (
	ChatroomStatusActive ChatroomStatus = "active"
	// ChatroomStatusWrapped is terminal: the room concluded (e.g. after
	// a token launch) and accepts no further messages or hijacks.
	ChatroomStatusWrapped ChatroomStatus = "wrapped"
)

// Chatroom is the shared multiplayer variant of a conversation. One
// user at a time holds the floor; others bid points to take it over.
type Chatroom struct {
	ID               string         `json:"id"`
	CharacterID      string         `json:"character_id"`
	CharacterName    string         `json:"character_name"`
	CurrentSpeakerID string         `json:"current_speaker_id"`
	Status           ChatroomStatus `json:"status"`
	HijackCost       int64          `json:"hijack_cost"`
	CreatedAt        int64          `json:"created_at"` // Unix seconds
	WrappedAt        *int64         `json:"wrapped_at,omitempty"`
}

// Wrapped reports whether the chatroom reached its terminal state.
func (c *Chatroom) Wrapped() bool {
	return c.Status == ChatroomStatusWrapped
}

// HijackBidRequest is the request body for registering a hijack bid.
type HijackBidRequest struct {
	Cost int64 `json:"cost" binding:"required,gt=0"`
}

// HijackCostResponse reports the current price to bid.
type HijackCostResponse struct {
	Cost int64 `json:"cost"`
}

// ChatroomResponse is the chatroom state exposed to UI clients:
// metadata plus the live hijack snapshot.
type ChatroomResponse struct {
	Chatroom     Chatroom         `json:"chatroom"`
	Hijack       HijackSnapshot   `json:"hijack"`
	Transcript   []DisplayMessage `json:"transcript,omitempty"`
	Participants []UserProfile    `json:"participants,omitempty"`
}

// HijackSnapshot is a point-in-time view of the turn-taking state
// machine, safe to serialize to clients.
type HijackSnapshot struct {
	State              string `json:"state"`
	CurrentSpeakerID   string `json:"current_speaker_id"`
	HijackingUserID    string `json:"hijacking_user_id,omitempty"`
	Cost               int64  `json:"cost"`
	CountdownRemaining int    `json:"countdown_remaining"`
}
