// Package transcript turns backend message history into the ordered,
// role-tagged sequence the UI renders. Pure functions, no side effects.
package transcript

import (
	"strings"

	"github.com/stagechat/session-gateway/internal/domain"
)

// Placeholder tokens recognized in a character's first-message template.
const (
	tokenChar = "{{char}}"
	tokenUser = "{{user}}"
)

// RenderFirstMessage substitutes the {{char}} and {{user}} placeholder
// tokens in a character's scripted first message.
func RenderFirstMessage(template, characterName, userName string) string {
	out := strings.ReplaceAll(template, tokenChar, characterName)
	return strings.ReplaceAll(out, tokenUser, userName)
}

// Build produces the display transcript for a one-on-one conversation:
// the rendered first message (assistant, stamped with the conversation
// creation time) followed by each history pair in input order as
// user-then-assistant. The final element, always assistant-authored by
// construction, is flagged as the latest reply.
func Build(firstMessageTemplate, characterName, userName string, pairs []domain.HistoryMessagePair, conversationCreatedAt int64) []domain.DisplayMessage {
	messages := make([]domain.DisplayMessage, 0, 2*len(pairs)+1)

	messages = append(messages, domain.DisplayMessage{
		Text:      RenderFirstMessage(firstMessageTemplate, characterName, userName),
		CreatedAt: conversationCreatedAt,
		Role:      domain.RoleAssistant,
		Status:    domain.StatusSuccess,
	})

	for _, pair := range pairs {
		messages = append(messages, domain.DisplayMessage{
			Text:      pair.User.Content,
			CreatedAt: pair.User.CreatedAt,
			Role:      domain.RoleUser,
			Status:    domain.StatusSuccess,
			AuthorID:  pair.User.AuthorID,
		})
		messages = append(messages, domain.DisplayMessage{
			Text:      pair.Assistant.Content,
			CreatedAt: pair.Assistant.CreatedAt,
			Role:      domain.RoleAssistant,
			Status:    domain.StatusSuccess,
		})
	}

	messages[len(messages)-1].IsLatestReply = true
	return messages
}

// BuildForViewer produces the transcript for a shared chatroom, where
// the viewer is not necessarily the author of any message. Role
// attribution compares each stored author id against localUserID: the
// viewer's own messages render as user, everything else (other
// participants and the character) renders as assistant. An empty
// localUserID yields an all-assistant transcript, the anonymous
// spectator view.
func BuildForViewer(localUserID, firstMessageTemplate, characterName, viewerName string, pairs []domain.HistoryMessagePair, chatroomCreatedAt int64) []domain.DisplayMessage {
	messages := make([]domain.DisplayMessage, 0, 2*len(pairs)+1)

	messages = append(messages, domain.DisplayMessage{
		Text:      RenderFirstMessage(firstMessageTemplate, characterName, viewerName),
		CreatedAt: chatroomCreatedAt,
		Role:      domain.RoleAssistant,
		Status:    domain.StatusSuccess,
	})

	for _, pair := range pairs {
		role := domain.RoleAssistant
		if localUserID != "" && pair.User.AuthorID == localUserID {
			role = domain.RoleUser
		}
		messages = append(messages, domain.DisplayMessage{
			Text:      pair.User.Content,
			CreatedAt: pair.User.CreatedAt,
			Role:      role,
			Status:    domain.StatusSuccess,
			AuthorID:  pair.User.AuthorID,
		})
		messages = append(messages, domain.DisplayMessage{
			Text:      pair.Assistant.Content,
			CreatedAt: pair.Assistant.CreatedAt,
			Role:      domain.RoleAssistant,
			Status:    domain.StatusSuccess,
		})
	}

	messages[len(messages)-1].IsLatestReply = true
	return messages
}
