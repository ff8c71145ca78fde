package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/service"
	"github.com/stagechat/session-gateway/internal/session"
	"github.com/stagechat/session-gateway/pkg/jwt"
	"github.com/stagechat/session-gateway/pkg/middleware"
)

type stubConversationService struct {
	transcript *domain.TranscriptResponse
	err        error
}

func (s *stubConversationService) GetTranscript(context.Context, string, string, string) (*domain.TranscriptResponse, error) {
	return s.transcript, s.err
}

func (s *stubConversationService) SendMessage(context.Context, string, string, string, string) (*domain.TranscriptResponse, error) {
	return s.transcript, s.err
}

func (s *stubConversationService) RetryMessage(context.Context, string, string, string) (*domain.TranscriptResponse, error) {
	return s.transcript, s.err
}

func (s *stubConversationService) Regenerate(context.Context, string, string, string) (*domain.TranscriptResponse, error) {
	return s.transcript, s.err
}

func (s *stubConversationService) ListConversations(context.Context, string, int, int) ([]domain.Conversation, int, error) {
	return nil, 0, s.err
}

func (s *stubConversationService) DeleteConversation(context.Context, string, string) error {
	return s.err
}

type stubChatroomService struct {
	state    *domain.ChatroomResponse
	snapshot *domain.HijackSnapshot
	cost     int64
	err      error
}

func (s *stubChatroomService) Attach(context.Context, string, string, string) (*domain.ChatroomResponse, error) {
	return s.state, s.err
}

func (s *stubChatroomService) State(context.Context, string, string, string) (*domain.ChatroomResponse, error) {
	return s.state, s.err
}

func (s *stubChatroomService) PostMessage(context.Context, string, string, string) error {
	return s.err
}

func (s *stubChatroomService) Bid(context.Context, string, string, int64) (*domain.HijackSnapshot, error) {
	return s.snapshot, s.err
}

func (s *stubChatroomService) Defend(context.Context, string, string) (*domain.HijackSnapshot, error) {
	return s.snapshot, s.err
}

func (s *stubChatroomService) HijackCost(context.Context, string) (int64, error) {
	return s.cost, s.err
}

func (s *stubChatroomService) Detach(context.Context, string, string) error {
	return s.err
}

func newTestRouter(t *testing.T, conversations service.ConversationService, chatrooms service.ChatroomService) (*gin.Engine, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tokens, err := jwt.NewManager("test-secret-test-secret-test-1234", "session-gateway")
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	token, err := tokens.Sign("user-1", "0xabc", "alice", time.Hour)
	if err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	h := NewHandler(conversations, chatrooms, middleware.NewAuthMiddleware(tokens))
	r := gin.New()
	h.RegisterRoutes(r, NewSSEHandler(chatrooms, nil))
	return r, token
}

func doRequest(r *gin.Engine, method, path, token, body string) *httptest.ResponseRecorder {
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandler_SendMessageStatusMapping(t *testing.T) {
	transcript := &domain.TranscriptResponse{ConversationID: "conv-1"}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"success", nil, http.StatusOK, ""},
		{"busy", session.ErrBusy, http.StatusConflict, "OPERATION_IN_FLIGHT"},
		{"send failed", session.ErrSendFailed, http.StatusBadGateway, "SEND_FAILED"},
		{"not found", service.ErrConversationNotFound, http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, token := newTestRouter(t, &stubConversationService{transcript: transcript, err: tt.err}, &stubChatroomService{})

			w := doRequest(r, http.MethodPost, "/api/v1/conversations/conv-1/messages", token, `{"text":"hello"}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}

			if tt.wantCode != "" {
				var envelope struct {
					Error struct {
						Code string `json:"code"`
					} `json:"error"`
				}
				if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
					t.Fatalf("unmarshal response: %v", err)
				}
				if envelope.Error.Code != tt.wantCode {
					t.Errorf("error code = %q, want %q", envelope.Error.Code, tt.wantCode)
				}
			}
		})
	}
}

func TestHandler_SendFailedCarriesTranscript(t *testing.T) {
	transcript := &domain.TranscriptResponse{
		ConversationID: "conv-1",
		Messages: []domain.DisplayMessage{
			{Text: "hello", Role: domain.RoleUser, Status: domain.StatusError, CreatedAt: 10},
		},
	}
	r, token := newTestRouter(t, &stubConversationService{transcript: transcript, err: session.ErrSendFailed}, &stubChatroomService{})

	w := doRequest(r, http.MethodPost, "/api/v1/conversations/conv-1/messages", token, `{"text":"hello"}`)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	var envelope struct {
		Data struct {
			Messages []domain.DisplayMessage `json:"messages"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if len(envelope.Data.Messages) != 1 || envelope.Data.Messages[0].Status != domain.StatusError {
		t.Fatalf("transcript not carried on failure: %+v", envelope.Data)
	}
}

func TestHandler_MutatingRoutesRequireAuth(t *testing.T) {
	r, _ := newTestRouter(t, &stubConversationService{}, &stubChatroomService{})

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/conversations/conv-1/messages"},
		{http.MethodPost, "/api/v1/chatrooms/room-1/hijack"},
		{http.MethodPost, "/api/v1/chatrooms/room-1/leave"},
	}
	for _, p := range paths {
		w := doRequest(r, p.method, p.path, "", `{"text":"x","cost":1}`)
		if w.Code != http.StatusUnauthorized {
			t.Errorf("%s %s status = %d, want 401", p.method, p.path, w.Code)
		}
	}
}

func TestHandler_ChatroomReadIsPublic(t *testing.T) {
	state := &domain.ChatroomResponse{
		Chatroom: domain.Chatroom{ID: "room-1", Status: domain.ChatroomStatusActive},
		Hijack:   domain.HijackSnapshot{State: "idle"},
	}
	r, _ := newTestRouter(t, &stubConversationService{}, &stubChatroomService{state: state, cost: 42})

	w := doRequest(r, http.MethodGet, "/api/v1/chatrooms/room-1", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET chatroom status = %d, want 200", w.Code)
	}

	w = doRequest(r, http.MethodGet, "/api/v1/chatrooms/room-1/hijack-cost", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET hijack-cost status = %d, want 200", w.Code)
	}
	var envelope struct {
		Data domain.HijackCostResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if envelope.Data.Cost != 42 {
		t.Errorf("cost = %d, want 42", envelope.Data.Cost)
	}
}

func TestHandler_HijackErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"wrapped", service.ErrChatroomWrapped, http.StatusConflict},
		{"rejected", service.ErrHijackFailed, http.StatusBadGateway},
		{"stale", service.ErrStaleState, http.StatusConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, token := newTestRouter(t, &stubConversationService{}, &stubChatroomService{err: tt.err})

			w := doRequest(r, http.MethodPost, "/api/v1/chatrooms/room-1/hijack", token, `{"cost":100}`)
			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", w.Code, tt.wantStatus, w.Body.String())
			}
		})
	}
}
