package service

import (
	"context"
	"errors"
	"io"
	"sync"

	"github.com/stagechat/session-gateway/internal/domain"
)

// fakeUpstream is a scriptable upstream backend for service tests. The
// event stream blocks until the context is cancelled so consumers stay
// quiet during tests.
type fakeUpstream struct {
	mu sync.Mutex

	character *domain.Character
	chatroom  *domain.Chatroom
	pairs     []domain.HistoryMessagePair
	profiles  map[string]domain.UserProfile

	conversation *domain.Conversation

	sendErr    error
	hijackErr  error
	defendErr  error
	cost       int64
	costErr    error
	leaveCalls int
	hijackBids []int64
}

func newFakeUpstream() *fakeUpstream {
	return &fakeUpstream{
		character: &domain.Character{ID: "char-1", Name: "Aria", FirstMessage: "Hello {{user}}, I'm {{char}}."},
		chatroom: &domain.Chatroom{
			ID:               "room-1",
			CharacterID:      "char-1",
			CharacterName:    "Aria",
			CurrentSpeakerID: "alice",
			Status:           domain.ChatroomStatusActive,
			HijackCost:       100,
			CreatedAt:        1000,
		},
		profiles: make(map[string]domain.UserProfile),
	}
}

func (f *fakeUpstream) Character(context.Context, string) (*domain.Character, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.character
	return &c, nil
}

func (f *fakeUpstream) Conversation(context.Context, string) (*domain.Conversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conversation == nil {
		return nil, errors.New("no conversation scripted")
	}
	c := *f.conversation
	return &c, nil
}

func (f *fakeUpstream) History(context.Context, string) ([]domain.HistoryMessagePair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HistoryMessagePair(nil), f.pairs...), nil
}

func (f *fakeUpstream) SendMessage(context.Context, string, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return "reply", nil
}

func (f *fakeUpstream) Regenerate(context.Context, string) (string, error) {
	return "regenerated", nil
}

func (f *fakeUpstream) Chatroom(context.Context, string) (*domain.Chatroom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c := *f.chatroom
	return &c, nil
}

func (f *fakeUpstream) ChatroomHistory(context.Context, string) ([]domain.HistoryMessagePair, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.HistoryMessagePair(nil), f.pairs...), nil
}

func (f *fakeUpstream) RegisterHijack(_ context.Context, _, _ string, cost int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hijackErr != nil {
		return f.hijackErr
	}
	f.hijackBids = append(f.hijackBids, cost)
	return nil
}

func (f *fakeUpstream) DefendHijack(context.Context, string, string, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.defendErr
}

func (f *fakeUpstream) HijackCost(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cost, f.costErr
}

func (f *fakeUpstream) LeaveChatroom(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaveCalls++
	return nil
}

func (f *fakeUpstream) Profiles(_ context.Context, ids []string) ([]domain.UserProfile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.UserProfile
	for _, id := range ids {
		if p, ok := f.profiles[id]; ok {
			out = append(out, p)
		} else {
			out = append(out, domain.UserProfile{ID: id, Username: id})
		}
	}
	return out, nil
}

func (f *fakeUpstream) OpenEventStream(ctx context.Context, _ string) (io.ReadCloser, error) {
	return &blockingStream{done: ctx.Done()}, nil
}

func (f *fakeUpstream) setSpeaker(userID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chatroom.CurrentSpeakerID = userID
}

// blockingStream yields no bytes until its context ends.
type blockingStream struct {
	done <-chan struct{}
}

func (s *blockingStream) Read([]byte) (int, error) {
	<-s.done
	return 0, io.EOF
}

func (s *blockingStream) Close() error { return nil }

// memoryConversationRepo is an in-memory ConversationRepository and
// CharacterRepository for mirror tests.
type memoryConversationRepo struct {
	mu            sync.Mutex
	conversations map[string]domain.Conversation
	histories     map[string][]domain.HistoryMessagePair
	characters    map[string]domain.Character
}

func newMemoryConversationRepo() *memoryConversationRepo {
	return &memoryConversationRepo{
		conversations: make(map[string]domain.Conversation),
		histories:     make(map[string][]domain.HistoryMessagePair),
		characters:    make(map[string]domain.Character),
	}
}

func (r *memoryConversationRepo) UpsertConversation(_ context.Context, c *domain.Conversation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conversations[c.ID] = *c
	return nil
}

func (r *memoryConversationRepo) GetConversation(_ context.Context, id string) (*domain.Conversation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conversations[id]
	if !ok {
		return nil, errors.New("conversation not found")
	}
	return &c, nil
}

func (r *memoryConversationRepo) ListByUser(_ context.Context, userID string, _, _ int) ([]domain.Conversation, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Conversation
	for _, c := range r.conversations {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out, len(out), nil
}

func (r *memoryConversationRepo) ReplaceHistory(_ context.Context, conversationID string, pairs []domain.HistoryMessagePair) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.histories[conversationID] = append([]domain.HistoryMessagePair(nil), pairs...)
	return nil
}

func (r *memoryConversationRepo) GetHistory(_ context.Context, conversationID string) ([]domain.HistoryMessagePair, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]domain.HistoryMessagePair(nil), r.histories[conversationID]...), nil
}

func (r *memoryConversationRepo) DeleteConversation(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conversations, id)
	delete(r.histories, id)
	return nil
}

func (r *memoryConversationRepo) UpsertCharacter(_ context.Context, c *domain.Character) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.characters[c.ID] = *c
	return nil
}

func (r *memoryConversationRepo) GetCharacter(_ context.Context, id string) (*domain.Character, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.characters[id]
	if !ok {
		return nil, errors.New("character not found")
	}
	return &c, nil
}

// failingUpstream wraps fakeUpstream but fails every read, driving the
// mirror fallback path.
type failingUpstream struct {
	*fakeUpstream
	err error
}

func (f *failingUpstream) Conversation(context.Context, string) (*domain.Conversation, error) {
	return nil, f.err
}

func (f *failingUpstream) Character(context.Context, string) (*domain.Character, error) {
	return nil, f.err
}

func (f *failingUpstream) History(context.Context, string) ([]domain.HistoryMessagePair, error) {
	return nil, f.err
}
