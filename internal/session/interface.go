package session

import (
	"context"

	"github.com/stagechat/session-gateway/internal/domain"
)

// Backend is the slice of the upstream world a conversation session
// needs: history to seed from and a send path for new messages. The
// service layer provides an implementation that combines the local
// mirror with the upstream client.
type Backend interface {
	// LoadConversation returns the conversation metadata, its character,
	// and the ordered history pairs.
	LoadConversation(ctx context.Context, conversationID string) (*domain.Conversation, *domain.Character, []domain.HistoryMessagePair, error)

	// SendMessage submits user text and returns the assistant reply.
	SendMessage(ctx context.Context, conversationID, text string) (string, error)

	// Regenerate requests a replacement for the latest assistant reply.
	Regenerate(ctx context.Context, conversationID string) (string, error)
}
