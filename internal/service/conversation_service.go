package service

import (
	"context"
	"errors"
	"time"

	"github.com/stagechat/session-gateway/internal/audit"
	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/kafka"
	"github.com/stagechat/session-gateway/internal/repository"
	"github.com/stagechat/session-gateway/internal/session"
	"github.com/stagechat/session-gateway/internal/upstream"
	"github.com/stagechat/session-gateway/pkg/log"
)

// conversationServiceImpl implements ConversationService.
type conversationServiceImpl struct {
	sessions *session.Manager
	repo     repository.ConversationRepository
	producer kafka.ActivityProducer
}

// NewConversationService creates a conversation service backed by the
// upstream client and the local mirror.
func NewConversationService(up upstream.Backend, repo repository.ConversationRepository, chars repository.CharacterRepository, producer kafka.ActivityProducer) ConversationService {
	backend := newConversationBackend(up, repo, chars)
	return &conversationServiceImpl{
		sessions: session.NewManager(backend),
		repo:     repo,
		producer: producer,
	}
}

func (s *conversationServiceImpl) GetTranscript(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error) {
	sess, err := s.sessions.Session(ctx, conversationID, userID, username)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}
	return transcriptResponse(conversationID, sess.Messages()), nil
}

func (s *conversationServiceImpl) SendMessage(ctx context.Context, userID, username, conversationID, text string) (*domain.TranscriptResponse, error) {
	sess, err := s.sessions.Session(ctx, conversationID, userID, username)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	messages, err := sess.Send(ctx, text)
	if err != nil {
		// A failed send still returns the transcript: the message sits
		// in it flagged for retry.
		return transcriptResponse(conversationID, messages), err
	}

	audit.LogWithTarget(ctx, audit.ActionSendMessage, userID, conversationID, "message sent")
	s.produceActivity(ctx, domain.ActivityMessageSent, userID, conversationID)
	return transcriptResponse(conversationID, messages), nil
}

func (s *conversationServiceImpl) RetryMessage(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error) {
	sess, err := s.sessions.Session(ctx, conversationID, userID, username)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	messages, err := sess.Retry(ctx)
	if err != nil {
		return transcriptResponse(conversationID, messages), err
	}

	audit.LogWithTarget(ctx, audit.ActionRetryMessage, userID, conversationID, "failed message retried")
	s.produceActivity(ctx, domain.ActivityMessageRetried, userID, conversationID)
	return transcriptResponse(conversationID, messages), nil
}

func (s *conversationServiceImpl) Regenerate(ctx context.Context, userID, username, conversationID string) (*domain.TranscriptResponse, error) {
	sess, err := s.sessions.Session(ctx, conversationID, userID, username)
	if err != nil {
		if errors.Is(err, upstream.ErrNotFound) {
			return nil, ErrConversationNotFound
		}
		return nil, err
	}

	messages, err := sess.Regenerate(ctx)
	if err != nil {
		return transcriptResponse(conversationID, messages), err
	}

	audit.LogWithTarget(ctx, audit.ActionRegenerate, userID, conversationID, "assistant reply regenerated")
	s.produceActivity(ctx, domain.ActivityRegenerate, userID, conversationID)
	return transcriptResponse(conversationID, messages), nil
}

func (s *conversationServiceImpl) ListConversations(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int, error) {
	return s.repo.ListByUser(ctx, userID, page, pageSize)
}

func (s *conversationServiceImpl) DeleteConversation(ctx context.Context, userID, conversationID string) error {
	if err := s.repo.DeleteConversation(ctx, conversationID); err != nil {
		if errors.Is(err, repository.ErrConversationNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	s.sessions.Evict(conversationID)
	return nil
}

func (s *conversationServiceImpl) produceActivity(ctx context.Context, kind, userID, conversationID string) {
	activity := &domain.SessionActivity{
		Kind:           kind,
		UserID:         userID,
		ConversationID: conversationID,
		Timestamp:      time.Now().Unix(),
	}
	if err := s.producer.ProduceActivity(ctx, activity); err != nil {
		log.Ctx(ctx).Warn().Err(err).Str("kind", kind).Msg("failed to produce activity")
	}
}

func transcriptResponse(conversationID string, messages []domain.DisplayMessage) *domain.TranscriptResponse {
	return &domain.TranscriptResponse{
		ConversationID: conversationID,
		Messages:       messages,
	}
}
