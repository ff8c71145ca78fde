package repository

import (
	"context"
	"errors"

	"github.com/stagechat/session-gateway/internal/domain"
)

var (
	ErrConversationNotFound = errors.New("conversation not found")
	ErrCharacterNotFound    = errors.New("character not found")
)

// ConversationRepository persists the local mirror of upstream
// conversations. The mirror is a read accelerator; the upstream backend
// stays the source of truth and every sync overwrites what is stored.
type ConversationRepository interface {
	UpsertConversation(ctx context.Context, conversation *domain.Conversation) error
	GetConversation(ctx context.Context, id string) (*domain.Conversation, error)
	ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int, error)
	ReplaceHistory(ctx context.Context, conversationID string, pairs []domain.HistoryMessagePair) error
	GetHistory(ctx context.Context, conversationID string) ([]domain.HistoryMessagePair, error)
	DeleteConversation(ctx context.Context, id string) error
}

// CharacterRepository caches character metadata locally.
type CharacterRepository interface {
	UpsertCharacter(ctx context.Context, character *domain.Character) error
	GetCharacter(ctx context.Context, id string) (*domain.Character, error)
}
