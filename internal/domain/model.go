package domain

import (
	"time"

	"gorm.io/gorm"

	"github.com/stagechat/session-gateway/pkg/database"
)

// ConversationModel is the GORM model for the local conversation mirror.
type ConversationModel struct {
	ID           string    `gorm:"type:varchar(36);primaryKey"`
	CharacterID  string    `gorm:"type:varchar(36);index;not null"`
	UserID       string    `gorm:"type:varchar(64);index;not null"`
	CreatedAt    int64     `gorm:"not null"` // Unix seconds, upstream truth
	LastSyncedAt time.Time `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

// TableName specifies the table name for ConversationModel.
func (ConversationModel) TableName() string {
	return "conversations"
}

// ToDomain converts ConversationModel to a domain Conversation.
func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:          m.ID,
		CharacterID: m.CharacterID,
		UserID:      m.UserID,
		CreatedAt:   m.CreatedAt,
	}
}

// ConversationToModel converts a domain Conversation to its GORM model.
func ConversationToModel(c *Conversation) *ConversationModel {
	return &ConversationModel{
		ID:          c.ID,
		CharacterID: c.CharacterID,
		UserID:      c.UserID,
		CreatedAt:   c.CreatedAt,
	}
}

// HistoryPairModel mirrors one backend message pair. Seq preserves the
// upstream order; pairs are never reordered.
type HistoryPairModel struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	ConversationID     string `gorm:"type:varchar(36);index:idx_pairs_conv_seq,priority:1;not null"`
	Seq                int    `gorm:"index:idx_pairs_conv_seq,priority:2;not null"`
	UserContent        string `gorm:"type:text;not null"`
	UserCreatedAt      int64  `gorm:"not null"`
	UserAuthorID       string `gorm:"type:varchar(64)"`
	AssistantContent   string `gorm:"type:text;not null"`
	AssistantCreatedAt int64  `gorm:"not null"`
}

// TableName specifies the table name for HistoryPairModel.
func (HistoryPairModel) TableName() string {
	return "history_pairs"
}

// ToDomain converts HistoryPairModel to a domain HistoryMessagePair.
func (m *HistoryPairModel) ToDomain() HistoryMessagePair {
	return HistoryMessagePair{
		User: HistoryMessage{
			Content:   m.UserContent,
			CreatedAt: m.UserCreatedAt,
			AuthorID:  m.UserAuthorID,
		},
		Assistant: HistoryMessage{
			Content:   m.AssistantContent,
			CreatedAt: m.AssistantCreatedAt,
		},
	}
}

// PairToModel converts a domain HistoryMessagePair to its GORM model.
func PairToModel(conversationID string, seq int, p HistoryMessagePair) *HistoryPairModel {
	return &HistoryPairModel{
		ConversationID:     conversationID,
		Seq:                seq,
		UserContent:        p.User.Content,
		UserCreatedAt:      p.User.CreatedAt,
		UserAuthorID:       p.User.AuthorID,
		AssistantContent:   p.Assistant.Content,
		AssistantCreatedAt: p.Assistant.CreatedAt,
	}
}

// CharacterModel caches character metadata needed to render transcripts
// without an upstream round trip.
type CharacterModel struct {
	ID           string               `gorm:"type:varchar(36);primaryKey"`
	Name         string               `gorm:"type:varchar(100);not null"`
	FirstMessage string               `gorm:"type:text"`
	AvatarURL    string               `gorm:"type:varchar(500)"`
	Tags         database.StringArray `gorm:"type:text"`
	UpdatedAt    time.Time            `gorm:"autoUpdateTime"`
}

// TableName specifies the table name for CharacterModel.
func (CharacterModel) TableName() string {
	return "characters"
}

// ToDomain converts CharacterModel to a domain Character.
func (m *CharacterModel) ToDomain() *Character {
	return &Character{
		ID:           m.ID,
		Name:         m.Name,
		FirstMessage: m.FirstMessage,
		AvatarURL:    m.AvatarURL,
		Tags:         []string(m.Tags),
	}
}

// CharacterToModel converts a domain Character to its GORM model.
func CharacterToModel(c *Character) *CharacterModel {
	return &CharacterModel{
		ID:           c.ID,
		Name:         c.Name,
		FirstMessage: c.FirstMessage,
		AvatarURL:    c.AvatarURL,
		Tags:         database.StringArray(c.Tags),
	}
}
