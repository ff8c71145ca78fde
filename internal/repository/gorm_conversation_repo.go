package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/pkg/log"
)

// GormConversationRepository implements ConversationRepository and
// CharacterRepository using GORM.
type GormConversationRepository struct {
	db *gorm.DB
}

// NewGormConversationRepository creates a new GORM-based conversation repository.
func NewGormConversationRepository(db *gorm.DB) *GormConversationRepository {
	return &GormConversationRepository{db: db}
}

// UpsertConversation inserts or refreshes one mirrored conversation.
func (r *GormConversationRepository) UpsertConversation(ctx context.Context, conversation *domain.Conversation) error {
	l := log.Ctx(ctx)

	model := domain.ConversationToModel(conversation)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"character_id", "user_id", "created_at"}),
	}).Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldConversationID, conversation.ID).Msg("failed to upsert conversation in db")
		return result.Error
	}

	l.Debug().Str(log.FieldConversationID, conversation.ID).Msg("conversation mirrored in db")
	return nil
}

// GetConversation retrieves a mirrored conversation by ID.
func (r *GormConversationRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	l := log.Ctx(ctx)

	var model domain.ConversationModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrConversationNotFound
		}
		l.Error().Err(result.Error).Str(log.FieldConversationID, id).Msg("failed to get conversation by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

// ListByUser retrieves a user's mirrored conversations with pagination.
func (r *GormConversationRepository) ListByUser(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int, error) {
	l := log.Ctx(ctx)

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	query := r.db.WithContext(ctx).Model(&domain.ConversationModel{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		l.Error().Err(err).Msg("failed to count conversations")
		return nil, 0, err
	}

	var models []domain.ConversationModel
	if err := query.Order("created_at DESC").Offset(offset).Limit(pageSize).Find(&models).Error; err != nil {
		l.Error().Err(err).Msg("failed to list conversations from db")
		return nil, 0, err
	}

	conversations := make([]domain.Conversation, 0, len(models))
	for i := range models {
		conversations = append(conversations, *models[i].ToDomain())
	}
	return conversations, int(total), nil
}

// ReplaceHistory swaps the mirrored history for a conversation with the
// latest upstream snapshot, preserving upstream order via Seq.
func (r *GormConversationRepository) ReplaceHistory(ctx context.Context, conversationID string, pairs []domain.HistoryMessagePair) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("conversation_id = ?", conversationID).Delete(&domain.HistoryPairModel{}).Error; err != nil {
			return err
		}
		if len(pairs) == 0 {
			return nil
		}
		models := make([]*domain.HistoryPairModel, 0, len(pairs))
		for i, pair := range pairs {
			models = append(models, domain.PairToModel(conversationID, i, pair))
		}
		return tx.Create(models).Error
	})
	if err != nil {
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to replace history in db")
		return err
	}

	l.Debug().Str(log.FieldConversationID, conversationID).Int("pairs", len(pairs)).Msg("history mirrored in db")
	return nil
}

// GetHistory returns the mirrored pairs for a conversation in upstream order.
func (r *GormConversationRepository) GetHistory(ctx context.Context, conversationID string) ([]domain.HistoryMessagePair, error) {
	l := log.Ctx(ctx)

	var models []domain.HistoryPairModel
	result := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("seq ASC").
		Find(&models)
	if result.Error != nil {
		l.Error().Err(result.Error).Str(log.FieldConversationID, conversationID).Msg("failed to get history from db")
		return nil, result.Error
	}

	pairs := make([]domain.HistoryMessagePair, 0, len(models))
	for i := range models {
		pairs = append(pairs, models[i].ToDomain())
	}
	return pairs, nil
}

// DeleteConversation soft-deletes a mirrored conversation and removes its pairs.
func (r *GormConversationRepository) DeleteConversation(ctx context.Context, id string) error {
	l := log.Ctx(ctx)

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Delete(&domain.ConversationModel{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrConversationNotFound
		}
		return tx.Where("conversation_id = ?", id).Delete(&domain.HistoryPairModel{}).Error
	})
	if err != nil {
		if !errors.Is(err, ErrConversationNotFound) {
			l.Error().Err(err).Str(log.FieldConversationID, id).Msg("failed to delete conversation from db")
		}
		return err
	}
	return nil
}

// UpsertCharacter inserts or refreshes one cached character.
func (r *GormConversationRepository) UpsertCharacter(ctx context.Context, character *domain.Character) error {
	l := log.Ctx(ctx)

	model := domain.CharacterToModel(character)
	result := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "first_message", "avatar_url", "tags"}),
	}).Create(model)
	if result.Error != nil {
		l.Error().Err(result.Error).Str("character_id", character.ID).Msg("failed to upsert character in db")
		return result.Error
	}
	return nil
}

// GetCharacter retrieves a cached character by ID.
func (r *GormConversationRepository) GetCharacter(ctx context.Context, id string) (*domain.Character, error) {
	l := log.Ctx(ctx)

	var model domain.CharacterModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		l.Error().Err(result.Error).Str("character_id", id).Msg("failed to get character by id")
		return nil, result.Error
	}
	return model.ToDomain(), nil
}
