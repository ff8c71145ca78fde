package session

import (
	"sync"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
)

// MessageLog is the optimistic, mutable message sequence behind a
// conversation view. It owns the in-memory transcript exclusively;
// callers only ever see copies. Appends are never reordered relative
// to insertion order.
type MessageLog struct {
	mu       sync.RWMutex
	messages []domain.DisplayMessage
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Seed replaces the entire sequence. Used once, when history finishes
// loading.
func (l *MessageLog) Seed(transcript []domain.DisplayMessage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = make([]domain.DisplayMessage, len(transcript))
	copy(l.messages, transcript)
}

// AppendUserMessage appends a locally-authored message in pending
// state and clears the previous latest-reply flag. The new entry never
// carries the flag; only assistant replies do, and the reply does not
// exist yet.
func (l *MessageLog) AppendUserMessage(text, authorID string) []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clearLatestReplyLocked()
	l.messages = append(l.messages, domain.DisplayMessage{
		Text:      text,
		CreatedAt: l.nextTimestampLocked(),
		Role:      domain.RoleUser,
		Status:    domain.StatusPending,
		AuthorID:  authorID,
	})
	return l.copyLocked()
}

// AppendAssistantReply appends a successful assistant reply and makes
// it the sole latest reply.
func (l *MessageLog) AppendAssistantReply(text string) []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.clearLatestReplyLocked()
	l.messages = append(l.messages, domain.DisplayMessage{
		Text:          text,
		CreatedAt:     l.nextTimestampLocked(),
		Role:          domain.RoleAssistant,
		Status:        domain.StatusSuccess,
		IsLatestReply: true,
	})
	return l.copyLocked()
}

// ResolveLastPending flips the final element from pending to success.
// No-op if the sequence is empty or the final element is not pending.
func (l *MessageLog) ResolveLastPending() []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 && l.messages[n-1].Status == domain.StatusPending {
		l.messages[n-1].Status = domain.StatusSuccess
	}
	return l.copyLocked()
}

// MarkLastAsSuccess settles the final element as success, used when a
// retry of a previously failed send goes through. No-op on empty.
func (l *MessageLog) MarkLastAsSuccess() []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 {
		l.messages[n-1].Status = domain.StatusSuccess
	}
	return l.copyLocked()
}

// MarkLastAsError sets error status on the final element. Explicit
// no-op on an empty sequence, never a crash.
func (l *MessageLog) MarkLastAsError() []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if n := len(l.messages); n > 0 {
		l.messages[n-1].Status = domain.StatusError
	}
	return l.copyLocked()
}

// PopLast removes the final element, used before regenerate to drop
// the assistant reply being replaced. The latest-reply flag moves back
// to the last remaining assistant message, if any. No-op on empty.
func (l *MessageLog) PopLast() []domain.DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.messages) == 0 {
		return nil
	}
	l.messages = l.messages[:len(l.messages)-1]

	l.clearLatestReplyLocked()
	for i := len(l.messages) - 1; i >= 0; i-- {
		if l.messages[i].Role == domain.RoleAssistant {
			l.messages[i].IsLatestReply = true
			break
		}
	}
	return l.copyLocked()
}

// Messages returns a copy of the current sequence.
func (l *MessageLog) Messages() []domain.DisplayMessage {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.copyLocked()
}

// Last returns the final element, if any.
func (l *MessageLog) Last() (domain.DisplayMessage, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if len(l.messages) == 0 {
		return domain.DisplayMessage{}, false
	}
	return l.messages[len(l.messages)-1], true
}

// Len returns the number of messages.
func (l *MessageLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.messages)
}

func (l *MessageLog) clearLatestReplyLocked() {
	for i := range l.messages {
		l.messages[i].IsLatestReply = false
	}
}

// nextTimestampLocked returns the current Unix time, bumped past the
// final element's timestamp if needed. Timestamps double as list keys
// on the client, so they must stay unique and non-decreasing.
func (l *MessageLog) nextTimestampLocked() int64 {
	now := time.Now().Unix()
	if n := len(l.messages); n > 0 && l.messages[n-1].CreatedAt >= now {
		return l.messages[n-1].CreatedAt + 1
	}
	return now
}

func (l *MessageLog) copyLocked() []domain.DisplayMessage {
	out := make([]domain.DisplayMessage, len(l.messages))
	copy(out, l.messages)
	return out
}
