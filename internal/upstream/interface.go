package upstream

import (
	"context"
	"io"

	"github.com/stagechat/session-gateway/internal/domain"
)

// Backend is the external product backend, reached over REST plus a
// per-chatroom SSE stream. The gateway treats it as the source of
// truth; only success or failure of mutating calls matters for local
// state transitions.
type Backend interface {
	Character(ctx context.Context, id string) (*domain.Character, error)
	Conversation(ctx context.Context, id string) (*domain.Conversation, error)
	History(ctx context.Context, conversationID string) ([]domain.HistoryMessagePair, error)
	SendMessage(ctx context.Context, conversationID, text string) (string, error)
	Regenerate(ctx context.Context, conversationID string) (string, error)

	Chatroom(ctx context.Context, id string) (*domain.Chatroom, error)
	ChatroomHistory(ctx context.Context, id string) ([]domain.HistoryMessagePair, error)
	RegisterHijack(ctx context.Context, chatroomID, userID string, cost int64) error
	DefendHijack(ctx context.Context, chatroomID, userID string, cost int64) error
	HijackCost(ctx context.Context, chatroomID string) (int64, error)
	LeaveChatroom(ctx context.Context, chatroomID, userID string) error

	Profiles(ctx context.Context, ids []string) ([]domain.UserProfile, error)

	// OpenEventStream opens the chatroom's SSE stream. The caller owns
	// the returned body and must close it.
	OpenEventStream(ctx context.Context, chatroomID string) (io.ReadCloser, error)
}
