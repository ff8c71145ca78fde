package handler

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/gin-contrib/sse"
	"github.com/gin-gonic/gin"

	"github.com/stagechat/session-gateway/internal/service"
	"github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/middleware"
	"github.com/stagechat/session-gateway/pkg/pubsub"
	"github.com/stagechat/session-gateway/pkg/response"
)

// SSEHandler streams chatroom events to downstream clients. Each
// connection subscribes to the room's bus channel, so events reach
// clients attached to any gateway instance.
type SSEHandler struct {
	chatrooms  service.ChatroomService
	subscriber pubsub.Subscriber
}

// detachTimeout bounds the upstream leave call issued after a stream
// closes.
const detachTimeout = 5 * time.Second

// NewSSEHandler creates a new SSE handler.
func NewSSEHandler(chatrooms service.ChatroomService, subscriber pubsub.Subscriber) *SSEHandler {
	return &SSEHandler{
		chatrooms:  chatrooms,
		subscriber: subscriber,
	}
}

// detach leaves the chatroom after a stream closes. The request
// context is already cancelled by then, so the upstream leave call
// runs on its own short-lived context.
func (h *SSEHandler) detach(userID, chatroomID string) {
	ctx, cancel := context.WithTimeout(context.Background(), detachTimeout)
	defer cancel()

	if err := h.chatrooms.Detach(ctx, userID, chatroomID); err != nil {
		log.L().Warn().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("detach after stream close failed")
	}
}

// StreamEvents is GET /api/v1/chatrooms/:id/events. Authenticated
// callers are attached as participants; anonymous callers spectate.
func (h *SSEHandler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	chatroomID := c.Param("id")
	userID := middleware.GetUserID(c)
	username := middleware.GetUsername(c)

	if userID != "" {
		if _, err := h.chatrooms.Attach(ctx, userID, username, chatroomID); err != nil {
			if errors.Is(err, service.ErrChatroomNotFound) {
				response.NotFound(c, "chatroom not found")
				return
			}
			l.Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to attach for event stream")
			response.InternalError(c, "failed to attach to chatroom")
			return
		}
		defer h.detach(userID, chatroomID)
	} else {
		if _, err := h.chatrooms.State(ctx, "", "", chatroomID); err != nil {
			if errors.Is(err, service.ErrChatroomNotFound) {
				response.NotFound(c, "chatroom not found")
				return
			}
			l.Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to open event stream")
			response.InternalError(c, "failed to open event stream")
			return
		}
	}

	channel := pubsub.ChatroomEventsChannel(chatroomID)
	events, unsubscribe, err := h.subscriber.Subscribe(ctx, channel)
	if err != nil {
		l.Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to subscribe to event bus")
		response.InternalError(c, "failed to subscribe to events")
		return
	}
	defer unsubscribe()

	c.Writer.Header().Set("Content-Type", sse.ContentType)
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case event, ok := <-events:
			if !ok {
				return false
			}
			c.Render(-1, sse.Event{
				Event: event.Type,
				Data:  event,
			})
			return true
		}
	})
}
