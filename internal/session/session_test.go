package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stagechat/session-gateway/internal/domain"
)

// fakeBackend scripts upstream behavior for session tests.
type fakeBackend struct {
	mu        sync.Mutex
	sendErr   error
	regenErr  error
	reply     string
	sent      []string
	regens    int
	loadErr   error
	pairs     []domain.HistoryMessagePair
	character domain.Character
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		reply:     "scripted reply",
		character: domain.Character{ID: "c1", Name: "Luna", FirstMessage: "hello {{user}}"},
	}
}

func (f *fakeBackend) LoadConversation(ctx context.Context, conversationID string) (*domain.Conversation, *domain.Character, []domain.HistoryMessagePair, error) {
	if f.loadErr != nil {
		return nil, nil, nil, f.loadErr
	}
	conv := &domain.Conversation{ID: conversationID, CharacterID: f.character.ID, UserID: "u1", CreatedAt: 1}
	ch := f.character
	return conv, &ch, f.pairs, nil
}

func (f *fakeBackend) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	if f.sendErr != nil {
		return "", f.sendErr
	}
	return f.reply, nil
}

func (f *fakeBackend) Regenerate(ctx context.Context, conversationID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.regens++
	if f.regenErr != nil {
		return "", f.regenErr
	}
	return f.reply, nil
}

func loadedSession(t *testing.T, backend *fakeBackend) *Session {
	t.Helper()
	s := New("conv1", "u1", "dave", backend)
	if err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return s
}

func TestSession_LoadFailureBlocks(t *testing.T) {
	backend := newFakeBackend()
	backend.loadErr = errors.New("upstream down")

	s := New("conv1", "u1", "dave", backend)
	if err := s.Load(context.Background()); err == nil {
		t.Fatal("Load() succeeded, want error")
	}

	if _, err := s.Send(context.Background(), "hi"); !errors.Is(err, ErrNotReady) {
		t.Errorf("Send() on unloaded session error = %v, want ErrNotReady", err)
	}
}

func TestSession_SendSuccess(t *testing.T) {
	backend := newFakeBackend()
	s := loadedSession(t, backend)

	msgs, err := s.Send(context.Background(), "hello")
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	// first message + user entry + assistant reply
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	user := msgs[1]
	if user.Role != domain.RoleUser || user.Status != domain.StatusSuccess {
		t.Errorf("user message = %+v, want success user entry", user)
	}
	reply := msgs[2]
	if reply.Text != "scripted reply" || !reply.IsLatestReply {
		t.Errorf("assistant reply = %+v", reply)
	}
}

func TestSession_SendFailureThenRetry(t *testing.T) {
	backend := newFakeBackend()
	s := loadedSession(t, backend)

	backend.sendErr = errors.New("network")
	msgs, err := s.Send(context.Background(), "hello")
	if !errors.Is(err, ErrSendFailed) {
		t.Fatalf("Send() error = %v, want ErrSendFailed", err)
	}
	last := msgs[len(msgs)-1]
	if last.Status != domain.StatusError {
		t.Fatalf("last status = %q, want error", last.Status)
	}

	backend.sendErr = nil
	msgs, err = s.Retry(context.Background())
	if err != nil {
		t.Fatalf("Retry() error = %v", err)
	}

	if got := backend.sent; len(got) != 2 || got[1] != "hello" {
		t.Errorf("retry resubmitted %v, want exact text %q twice", got, "hello")
	}

	// No duplicate user entry: first message + one user entry + reply.
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3 (no duplicate append)", len(msgs))
	}
	if msgs[1].Status != domain.StatusSuccess {
		t.Errorf("retried message status = %q, want success", msgs[1].Status)
	}
}

func TestSession_RetryWithoutFailure(t *testing.T) {
	backend := newFakeBackend()
	s := loadedSession(t, backend)

	if _, err := s.Retry(context.Background()); !errors.Is(err, ErrNothingToRetry) {
		t.Errorf("Retry() error = %v, want ErrNothingToRetry", err)
	}
}

func TestSession_RegeneratePopsExactlyOne(t *testing.T) {
	backend := newFakeBackend()
	backend.pairs = []domain.HistoryMessagePair{
		{
			User:      domain.HistoryMessage{Content: "hi", CreatedAt: 10},
			Assistant: domain.HistoryMessage{Content: "hello", CreatedAt: 11},
		},
	}
	backend.reply = "hello, take two"
	s := loadedSession(t, backend)

	msgs, err := s.Regenerate(context.Background())
	if err != nil {
		t.Fatalf("Regenerate() error = %v", err)
	}

	if backend.regens != 1 {
		t.Errorf("regenerate calls = %d, want 1", backend.regens)
	}
	if len(msgs) != 3 {
		t.Fatalf("len = %d, want 3", len(msgs))
	}
	if msgs[1].Text != "hi" {
		t.Errorf("user message changed: %+v", msgs[1])
	}
	last := msgs[2]
	if last.Text != "hello, take two" || !last.IsLatestReply {
		t.Errorf("replacement reply = %+v", last)
	}
}

func TestSession_RegenerateWithoutReply(t *testing.T) {
	backend := newFakeBackend()
	s := loadedSession(t, backend)

	// The scripted first message is not regenerable.
	if _, err := s.Regenerate(context.Background()); !errors.Is(err, ErrNothingToRegenerate) {
		t.Errorf("Regenerate() on seed-only transcript error = %v, want ErrNothingToRegenerate", err)
	}

	// Neither is a transcript ending in a failed user message.
	backend.sendErr = errors.New("network")
	if _, err := s.Send(context.Background(), "hi"); err == nil {
		t.Fatal("Send() succeeded, want failure")
	}
	if _, err := s.Regenerate(context.Background()); !errors.Is(err, ErrNothingToRegenerate) {
		t.Errorf("Regenerate() error = %v, want ErrNothingToRegenerate", err)
	}
}

func TestSession_SendSerialized(t *testing.T) {
	backend := newFakeBackend()
	s := loadedSession(t, backend)

	release := make(chan struct{})
	started := make(chan struct{})
	blockingBackend := &blockingSender{fakeBackend: backend, release: release, started: started}
	s.backend = blockingBackend

	done := make(chan error, 1)
	go func() {
		_, err := s.Send(context.Background(), "first")
		done <- err
	}()

	<-started
	if _, err := s.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Errorf("concurrent Send() error = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Errorf("first Send() error = %v", err)
	}
}

type blockingSender struct {
	*fakeBackend
	release <-chan struct{}
	started chan struct{}
	once    sync.Once
}

func (b *blockingSender) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return b.fakeBackend.SendMessage(ctx, conversationID, text)
}

func TestManager_SharedLoad(t *testing.T) {
	backend := newFakeBackend()
	m := NewManager(backend)

	s1, err := m.Session(context.Background(), "conv1", "u1", "dave")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	s2, err := m.Session(context.Background(), "conv1", "u1", "dave")
	if err != nil {
		t.Fatalf("Session() error = %v", err)
	}
	if s1 != s2 {
		t.Error("same conversation returned distinct sessions")
	}
}

func TestManager_FailedLoadNotCached(t *testing.T) {
	backend := newFakeBackend()
	backend.loadErr = errors.New("upstream down")
	m := NewManager(backend)

	if _, err := m.Session(context.Background(), "conv1", "u1", "dave"); err == nil {
		t.Fatal("Session() succeeded, want error")
	}

	backend.loadErr = nil
	s, err := m.Session(context.Background(), "conv1", "u1", "dave")
	if err != nil {
		t.Fatalf("Session() after recovery error = %v", err)
	}
	if !s.Ready() {
		t.Error("recovered session not ready")
	}
}
