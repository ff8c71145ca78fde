package service

import (
	"context"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/repository"
	"github.com/stagechat/session-gateway/internal/upstream"
	"github.com/stagechat/session-gateway/pkg/log"
)

// conversationBackend adapts the upstream client and the local mirror
// into the narrow interface a session needs. Reads prefer upstream and
// refresh the mirror; when upstream is down, a previously mirrored
// conversation still loads.
type conversationBackend struct {
	upstream upstream.Backend
	repo     repository.ConversationRepository
	chars    repository.CharacterRepository
}

func newConversationBackend(up upstream.Backend, repo repository.ConversationRepository, chars repository.CharacterRepository) *conversationBackend {
	return &conversationBackend{upstream: up, repo: repo, chars: chars}
}

func (b *conversationBackend) LoadConversation(ctx context.Context, conversationID string) (*domain.Conversation, *domain.Character, []domain.HistoryMessagePair, error) {
	conversation, err := b.upstream.Conversation(ctx, conversationID)
	if err != nil {
		return b.loadFromMirror(ctx, conversationID, err)
	}

	character, err := b.upstream.Character(ctx, conversation.CharacterID)
	if err != nil {
		return b.loadFromMirror(ctx, conversationID, err)
	}

	pairs, err := b.upstream.History(ctx, conversationID)
	if err != nil {
		return b.loadFromMirror(ctx, conversationID, err)
	}

	b.mirror(ctx, conversation, character, pairs)
	return conversation, character, pairs, nil
}

func (b *conversationBackend) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	return b.upstream.SendMessage(ctx, conversationID, text)
}

func (b *conversationBackend) Regenerate(ctx context.Context, conversationID string) (string, error) {
	return b.upstream.Regenerate(ctx, conversationID)
}

// mirror refreshes the local copy. Mirror writes are best effort: a
// failed write never fails the load that produced the data.
func (b *conversationBackend) mirror(ctx context.Context, conversation *domain.Conversation, character *domain.Character, pairs []domain.HistoryMessagePair) {
	l := log.Ctx(ctx)

	if err := b.repo.UpsertConversation(ctx, conversation); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, conversation.ID).Msg("failed to mirror conversation")
		return
	}
	if err := b.chars.UpsertCharacter(ctx, character); err != nil {
		l.Warn().Err(err).Str(log.FieldCharacterID, character.ID).Msg("failed to mirror character")
	}
	if err := b.repo.ReplaceHistory(ctx, conversation.ID, pairs); err != nil {
		l.Warn().Err(err).Str(log.FieldConversationID, conversation.ID).Msg("failed to mirror history")
	}
}

func (b *conversationBackend) loadFromMirror(ctx context.Context, conversationID string, cause error) (*domain.Conversation, *domain.Character, []domain.HistoryMessagePair, error) {
	l := log.Ctx(ctx)

	conversation, err := b.repo.GetConversation(ctx, conversationID)
	if err != nil {
		// Nothing mirrored; the original upstream failure is the story.
		return nil, nil, nil, cause
	}
	character, err := b.chars.GetCharacter(ctx, conversation.CharacterID)
	if err != nil {
		return nil, nil, nil, cause
	}
	pairs, err := b.repo.GetHistory(ctx, conversationID)
	if err != nil {
		return nil, nil, nil, cause
	}

	l.Warn().Err(cause).
		Str(log.FieldConversationID, conversationID).
		Msg("upstream unavailable, serving mirrored history")
	return conversation, character, pairs, nil
}
