package session

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/transcript"
	"github.com/stagechat/session-gateway/pkg/log"
)

var (
	// ErrNotReady means history has not loaded; no transcript exists yet.
	ErrNotReady = errors.New("conversation history has not loaded")
	// ErrBusy means a send or regenerate is already in flight. Exactly
	// one mutating operation runs per conversation at a time.
	ErrBusy = errors.New("another operation is in flight for this conversation")
	// ErrSendFailed marks a recoverable upstream send failure; the
	// affected message is flagged for retry, nothing is fatal.
	ErrSendFailed = errors.New("message send failed")
	// ErrNothingToRetry means the final message is not a failed send.
	ErrNothingToRetry = errors.New("no failed message to retry")
	// ErrNothingToRegenerate means the final message is not a
	// successful assistant reply.
	ErrNothingToRegenerate = errors.New("no assistant reply to regenerate")
)

// Session is the per-conversation controller. It owns the optimistic
// message log and serializes mutating operations: the busy flag, not
// blocking, enforces "at most one in-flight send".
type Session struct {
	conversationID string
	userID         string
	userName       string
	backend        Backend

	log *MessageLog

	mu    sync.Mutex
	busy  bool
	ready bool
}

// New creates an unloaded session. Call Load before anything else.
func New(conversationID, userID, userName string, backend Backend) *Session {
	return &Session{
		conversationID: conversationID,
		userID:         userID,
		userName:       userName,
		backend:        backend,
		log:            NewMessageLog(),
	}
}

// Load fetches conversation metadata, character, and history, builds
// the transcript, and seeds the log. This is the only operation whose
// failure blocks the session: without history there is no meaningful
// transcript to show.
func (s *Session) Load(ctx context.Context) error {
	conversation, character, pairs, err := s.backend.LoadConversation(ctx, s.conversationID)
	if err != nil {
		return fmt.Errorf("failed to load conversation %s: %w", s.conversationID, err)
	}

	seed := transcript.Build(character.FirstMessage, character.Name, s.userName, pairs, conversation.CreatedAt)
	s.log.Seed(seed)

	s.mu.Lock()
	s.ready = true
	s.mu.Unlock()

	log.Ctx(ctx).Debug().
		Str(log.FieldConversationID, s.conversationID).
		Int("messages", len(seed)).
		Msg("conversation session loaded")
	return nil
}

// Ready reports whether history has loaded.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Messages returns the current transcript.
func (s *Session) Messages() []domain.DisplayMessage {
	return s.log.Messages()
}

// Send appends the text optimistically, submits it upstream, and
// reconciles the pending entry to success (appending the assistant
// reply) or error. Returns ErrBusy while another operation is in
// flight.
func (s *Session) Send(ctx context.Context, text string) ([]domain.DisplayMessage, error) {
	if err := s.begin(); err != nil {
		return s.log.Messages(), err
	}
	defer s.end()

	s.log.AppendUserMessage(text, s.userID)

	reply, err := s.backend.SendMessage(ctx, s.conversationID, text)
	if err != nil {
		msgs := s.log.MarkLastAsError()
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldConversationID, s.conversationID).
			Msg("send failed, message marked for retry")
		return msgs, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.log.ResolveLastPending()
	return s.log.AppendAssistantReply(reply), nil
}

// Retry resubmits the exact text of the last failed message without
// appending a duplicate entry.
func (s *Session) Retry(ctx context.Context) ([]domain.DisplayMessage, error) {
	if err := s.begin(); err != nil {
		return s.log.Messages(), err
	}
	defer s.end()

	last, ok := s.log.Last()
	if !ok || last.Role != domain.RoleUser || last.Status != domain.StatusError {
		return s.log.Messages(), ErrNothingToRetry
	}

	reply, err := s.backend.SendMessage(ctx, s.conversationID, last.Text)
	if err != nil {
		return s.log.Messages(), fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	s.log.MarkLastAsSuccess()
	return s.log.AppendAssistantReply(reply), nil
}

// Regenerate drops the latest assistant reply and requests a
// replacement. Exactly one element is popped; the user message that
// produced the reply is untouched.
func (s *Session) Regenerate(ctx context.Context) ([]domain.DisplayMessage, error) {
	if err := s.begin(); err != nil {
		return s.log.Messages(), err
	}
	defer s.end()

	// The scripted first message is never regenerated, so the log must
	// hold more than the seed element.
	last, ok := s.log.Last()
	if !ok || last.Role != domain.RoleAssistant || !last.IsLatestReply || s.log.Len() < 2 {
		return s.log.Messages(), ErrNothingToRegenerate
	}

	s.log.PopLast()

	reply, err := s.backend.Regenerate(ctx, s.conversationID)
	if err != nil {
		msgs := s.log.MarkLastAsError()
		log.Ctx(ctx).Warn().Err(err).
			Str(log.FieldConversationID, s.conversationID).
			Msg("regenerate failed")
		return msgs, fmt.Errorf("%w: %v", ErrSendFailed, err)
	}

	return s.log.AppendAssistantReply(reply), nil
}

func (s *Session) begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.ready {
		return ErrNotReady
	}
	if s.busy {
		return ErrBusy
	}
	s.busy = true
	return nil
}

func (s *Session) end() {
	s.mu.Lock()
	s.busy = false
	s.mu.Unlock()
}
