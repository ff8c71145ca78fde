package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/pkg/log"
)

var (
	ErrNotFound    = errors.New("upstream resource not found")
	ErrUnavailable = errors.New("upstream backend unavailable")
)

// Config holds upstream connection settings.
type Config struct {
	BaseURL      string        `mapstructure:"base_url"`
	ServiceToken string        `mapstructure:"service_token"`
	Timeout      time.Duration `mapstructure:"timeout"`
}

// HTTPClient implements Backend over the product's REST API.
type HTTPClient struct {
	base   *url.URL
	token  string
	client *http.Client
	// streamClient has no timeout: SSE connections are long-lived.
	streamClient *http.Client
}

// NewHTTPClient creates an upstream client. Outbound calls are logged
// through pkg/log.Transport.
func NewHTTPClient(cfg Config) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid upstream base url: %w", err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	transport := &log.Transport{Logger: *log.L()}
	return &HTTPClient{
		base:         base,
		token:        cfg.ServiceToken,
		client:       &http.Client{Timeout: timeout, Transport: transport},
		streamClient: &http.Client{Transport: transport},
	}, nil
}

// envelope is the upstream's standard response wrapper.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base.String()+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var env envelope
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("failed to decode upstream response: %w", err)
	}
	if !env.Success || resp.StatusCode >= 400 {
		if env.Error.Message != "" {
			return fmt.Errorf("upstream rejected %s %s: %s", method, path, env.Error.Message)
		}
		return fmt.Errorf("upstream rejected %s %s: status %d", method, path, resp.StatusCode)
	}

	if out != nil {
		if err := json.Unmarshal(env.Data, out); err != nil {
			return fmt.Errorf("failed to decode upstream payload: %w", err)
		}
	}
	return nil
}

// Character fetches a character by id.
func (c *HTTPClient) Character(ctx context.Context, id string) (*domain.Character, error) {
	var out domain.Character
	if err := c.do(ctx, http.MethodGet, "/characters/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Conversation fetches conversation metadata.
func (c *HTTPClient) Conversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var out domain.Conversation
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// History fetches the ordered message pairs of a conversation.
func (c *HTTPClient) History(ctx context.Context, conversationID string) ([]domain.HistoryMessagePair, error) {
	var out []domain.HistoryMessagePair
	if err := c.do(ctx, http.MethodGet, "/conversations/"+url.PathEscape(conversationID)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type sendMessageRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Reply string `json:"reply"`
}

// SendMessage submits user text and returns the assistant reply.
func (c *HTTPClient) SendMessage(ctx context.Context, conversationID, text string) (string, error) {
	var out replyResponse
	err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/messages", sendMessageRequest{Text: text}, &out)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// Regenerate requests a replacement for the latest assistant reply.
func (c *HTTPClient) Regenerate(ctx context.Context, conversationID string) (string, error) {
	var out replyResponse
	err := c.do(ctx, http.MethodPost, "/conversations/"+url.PathEscape(conversationID)+"/regenerate", nil, &out)
	if err != nil {
		return "", err
	}
	return out.Reply, nil
}

// Chatroom fetches chatroom metadata including current speaker and
// wrapped status.
func (c *HTTPClient) Chatroom(ctx context.Context, id string) (*domain.Chatroom, error) {
	var out domain.Chatroom
	if err := c.do(ctx, http.MethodGet, "/chatrooms/"+url.PathEscape(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ChatroomHistory fetches the chatroom's message pairs.
func (c *HTTPClient) ChatroomHistory(ctx context.Context, id string) ([]domain.HistoryMessagePair, error) {
	var out []domain.HistoryMessagePair
	if err := c.do(ctx, http.MethodGet, "/chatrooms/"+url.PathEscape(id)+"/history", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type hijackRequest struct {
	UserID string `json:"user_id"`
	Cost   int64  `json:"cost"`
}

// RegisterHijack submits a hijack bid.
func (c *HTTPClient) RegisterHijack(ctx context.Context, chatroomID, userID string, cost int64) error {
	return c.do(ctx, http.MethodPost, "/chatrooms/"+url.PathEscape(chatroomID)+"/hijack", hijackRequest{UserID: userID, Cost: cost}, nil)
}

// DefendHijack matches the outstanding bid to keep the floor.
func (c *HTTPClient) DefendHijack(ctx context.Context, chatroomID, userID string, cost int64) error {
	return c.do(ctx, http.MethodPost, "/chatrooms/"+url.PathEscape(chatroomID)+"/defend", hijackRequest{UserID: userID, Cost: cost}, nil)
}

// HijackCost queries the current bid price. Re-queried after every
// hijackRegistered / hijackSucceeded event; the escalation formula is
// server-owned.
func (c *HTTPClient) HijackCost(ctx context.Context, chatroomID string) (int64, error) {
	var out domain.HijackCostResponse
	if err := c.do(ctx, http.MethodGet, "/chatrooms/"+url.PathEscape(chatroomID)+"/hijack-cost", nil, &out); err != nil {
		return 0, err
	}
	return out.Cost, nil
}

// LeaveChatroom notifies the backend the user left. Best effort: the
// caller ignores failures.
func (c *HTTPClient) LeaveChatroom(ctx context.Context, chatroomID, userID string) error {
	return c.do(ctx, http.MethodPost, "/chatrooms/"+url.PathEscape(chatroomID)+"/leave", map[string]string{"user_id": userID}, nil)
}

// Profiles resolves user ids to display profiles.
func (c *HTTPClient) Profiles(ctx context.Context, ids []string) ([]domain.UserProfile, error) {
	var out []domain.UserProfile
	if err := c.do(ctx, http.MethodPost, "/users/profiles", map[string][]string{"ids": ids}, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// OpenEventStream opens the chatroom's SSE stream.
func (c *HTTPClient) OpenEventStream(ctx context.Context, chatroomID string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.String()+"/chatrooms/"+url.PathEscape(chatroomID)+"/events", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.streamClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: stream status %d", ErrUnavailable, resp.StatusCode)
	}
	return resp.Body, nil
}
