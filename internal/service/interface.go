package service

import (
	"context"
	"errors"

	"github.com/stagechat/session-gateway/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrChatroomNotFound     = errors.New("chatroom not found")
	// ErrChatroomWrapped rejects posts and hijacks after the room
	// reached its terminal state.
	ErrChatroomWrapped = errors.New("chatroom is wrapped")
	// ErrNotYourTurn rejects posting while another user holds the floor.
	ErrNotYourTurn = errors.New("another user holds the floor")
	// ErrHijackFailed marks a hijack bid or defend the backend rejected;
	// local state has been rolled back to the pre-action snapshot.
	ErrHijackFailed = errors.New("hijack action failed")
	// ErrStaleState means local state diverged from the backend and a
	// resync was triggered; the client should re-read and retry.
	ErrStaleState = errors.New("local state was stale, resynchronized")
)

// ConversationService is the one-on-one chat surface: transcript
// loading plus the optimistic send/retry/regenerate cycle.
type ConversationService interface {
	GetTranscript(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error)
	SendMessage(ctx context.Context, userID, username, conversationID, text string) (*domain.TranscriptResponse, error)
	RetryMessage(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error)
	Regenerate(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error)
	ListConversations(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int, error)
	DeleteConversation(ctx context.Context, userID, conversationID string) error
}

// ChatroomService is the multiplayer surface: attaching to a room's
// event stream, reading live state, posting while holding the floor,
// and the hijack bid/defend cycle.
type ChatroomService interface {
	Attach(ctx context.Context, userID, username, chatroomID string) (*domain.ChatroomResponse, error)
	State(ctx context.Context, userID, username, chatroomID string) (*domain.ChatroomResponse, error)
	PostMessage(ctx context.Context, userID, chatroomID, text string) error
	Bid(ctx context.Context, userID, chatroomID string, cost int64) (*domain.HijackSnapshot, error)
	Defend(ctx context.Context, userID, chatroomID string) (*domain.HijackSnapshot, error)
	HijackCost(ctx context.Context, chatroomID string) (int64, error)
	Detach(ctx context.Context, userID, chatroomID string) error
}
