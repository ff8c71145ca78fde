package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/internal/hijack"
	"github.com/stagechat/session-gateway/internal/service"
	"github.com/stagechat/session-gateway/internal/session"
	"github.com/stagechat/session-gateway/pkg/log"
	"github.com/stagechat/session-gateway/pkg/middleware"
	"github.com/stagechat/session-gateway/pkg/response"
)

// Handler handles HTTP requests for the session gateway.
type Handler struct {
	conversations  service.ConversationService
	chatrooms      service.ChatroomService
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler creates a new HTTP handler.
func NewHandler(conversations service.ConversationService, chatrooms service.ChatroomService, authMiddleware *middleware.AuthMiddleware) *Handler {
	return &Handler{
		conversations:  conversations,
		chatrooms:      chatrooms,
		authMiddleware: authMiddleware,
	}
}

// RegisterRoutes registers all routes.
func (h *Handler) RegisterRoutes(r *gin.Engine, sseHandler *SSEHandler) {
	r.GET("/health", h.Health)

	api := r.Group("/api/v1")
	{
		conversations := api.Group("/conversations", h.authMiddleware.RequireAuth())
		{
			conversations.GET("", h.ListConversations)
			conversations.GET("/:id/transcript", h.GetTranscript)
			conversations.POST("/:id/messages", h.SendMessage)
			conversations.POST("/:id/messages/retry", h.RetryMessage)
			conversations.POST("/:id/regenerate", h.Regenerate)
			conversations.DELETE("/:id", h.DeleteConversation)
		}

		chatrooms := api.Group("/chatrooms")
		{
			// Public read routes; spectators need no account, but a
			// valid token personalizes the transcript.
			chatrooms.GET("/:id", h.authMiddleware.OptionalAuth(), h.GetChatroom)
			chatrooms.GET("/:id/hijack-cost", h.GetHijackCost)

			chatrooms.POST("/:id/messages", h.authMiddleware.RequireAuth(), h.PostChatroomMessage)
			chatrooms.POST("/:id/hijack", h.authMiddleware.RequireAuth(), h.RegisterHijack)
			chatrooms.POST("/:id/defend", h.authMiddleware.RequireAuth(), h.DefendHijack)
			chatrooms.POST("/:id/leave", h.authMiddleware.RequireAuth(), h.LeaveChatroom)
			chatrooms.GET("/:id/events", h.authMiddleware.OptionalAuth(), sseHandler.StreamEvents)
		}
	}
}

// Health reports liveness.
func (h *Handler) Health(c *gin.Context) {
	response.Success(c, gin.H{"status": "ok"})
}

// GetTranscript returns the rendered transcript for a conversation.
func (h *Handler) GetTranscript(c *gin.Context) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	username := middleware.GetUsername(c)
	conversationID := c.Param("id")

	transcript, err := h.conversations.GetTranscript(ctx, userID, username, conversationID)
	if err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			response.NotFound(c, "conversation not found")
			return
		}
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to load transcript")
		response.Error(c, http.StatusBadGateway, "HISTORY_LOAD_FAILED", "conversation history could not be loaded")
		return
	}

	response.Success(c, transcript)
}

// SendMessage submits user text into a conversation.
func (h *Handler) SendMessage(c *gin.Context) {
	h.mutateConversation(c, func(userID, username, conversationID, text string) (*domain.TranscriptResponse, error) {
		return h.conversations.SendMessage(c.Request.Context(), userID, username, conversationID, text)
	}, true)
}

// RetryMessage resubmits the last failed message.
func (h *Handler) RetryMessage(c *gin.Context) {
	h.mutateConversation(c, func(userID, username, conversationID, _ string) (*domain.TranscriptResponse, error) {
		return h.conversations.RetryMessage(c.Request.Context(), userID, username, conversationID)
	}, false)
}

// Regenerate replaces the latest assistant reply.
func (h *Handler) Regenerate(c *gin.Context) {
	h.mutateConversation(c, func(userID, username, conversationID, _ string) (*domain.TranscriptResponse, error) {
		return h.conversations.Regenerate(c.Request.Context(), userID, username, conversationID)
	}, false)
}

// mutateConversation runs one transcript-mutating operation and maps
// its sentinels. A failed send still carries the transcript so clients
// can render the message flagged for retry.
func (h *Handler) mutateConversation(c *gin.Context, op func(userID, username, conversationID, text string) (*domain.TranscriptResponse, error), withBody bool) {
	ctx := c.Request.Context()
	l := log.Ctx(ctx)

	userID := middleware.GetUserID(c)
	username := middleware.GetUsername(c)
	conversationID := c.Param("id")

	var text string
	if withBody {
		var req domain.SendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			response.BadRequest(c, err.Error())
			return
		}
		text = req.Text
	}

	transcript, err := op(userID, username, conversationID, text)
	switch {
	case err == nil:
		response.Success(c, transcript)
	case errors.Is(err, service.ErrConversationNotFound):
		response.NotFound(c, "conversation not found")
	case errors.Is(err, session.ErrBusy):
		response.Conflict(c, "OPERATION_IN_FLIGHT", "another operation is in flight for this conversation")
	case errors.Is(err, session.ErrNothingToRetry):
		response.Conflict(c, "NOTHING_TO_RETRY", "the last message is not a failed send")
	case errors.Is(err, session.ErrNothingToRegenerate):
		response.Conflict(c, "NOTHING_TO_REGENERATE", "the last message is not an assistant reply")
	case errors.Is(err, session.ErrSendFailed):
		// Recoverable: the transcript returns with the message in error
		// state, awaiting a retry.
		c.JSON(http.StatusBadGateway, response.Response{
			Success: false,
			Data:    transcript,
			Error:   &response.ErrorInfo{Code: "SEND_FAILED", Message: "message send failed, flagged for retry"},
		})
	default:
		l.Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("conversation operation failed")
		response.InternalError(c, "operation failed")
	}
}

// ListConversations lists the caller's mirrored conversations.
func (h *Handler) ListConversations(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	conversations, total, err := h.conversations.ListConversations(ctx, userID, page, pageSize)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list conversations")
		response.InternalError(c, "failed to list conversations")
		return
	}

	response.Success(c, gin.H{
		"conversations": conversations,
		"total":         total,
		"page":          page,
		"page_size":     pageSize,
	})
}

// DeleteConversation removes a mirrored conversation.
func (h *Handler) DeleteConversation(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	conversationID := c.Param("id")

	if err := h.conversations.DeleteConversation(ctx, userID, conversationID); err != nil {
		if errors.Is(err, service.ErrConversationNotFound) {
			response.NotFound(c, "conversation not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldConversationID, conversationID).Msg("failed to delete conversation")
		response.InternalError(c, "failed to delete conversation")
		return
	}

	response.Success(c, gin.H{"deleted": conversationID})
}

// GetChatroom returns live room state: speaker, hijack snapshot,
// wrapped flag, and the viewer-relative transcript.
func (h *Handler) GetChatroom(c *gin.Context) {
	ctx := c.Request.Context()

	// Optional auth: spectators get an all-assistant transcript.
	userID := middleware.GetUserID(c)
	username := middleware.GetUsername(c)
	chatroomID := c.Param("id")

	state, err := h.chatrooms.State(ctx, userID, username, chatroomID)
	if err != nil {
		if errors.Is(err, service.ErrChatroomNotFound) {
			response.NotFound(c, "chatroom not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to load chatroom")
		response.Error(c, http.StatusBadGateway, "HISTORY_LOAD_FAILED", "chatroom state could not be loaded")
		return
	}

	response.Success(c, state)
}

// GetHijackCost returns the current price to bid, never cached.
func (h *Handler) GetHijackCost(c *gin.Context) {
	ctx := c.Request.Context()
	chatroomID := c.Param("id")

	cost, err := h.chatrooms.HijackCost(ctx, chatroomID)
	if err != nil {
		if errors.Is(err, service.ErrChatroomNotFound) {
			response.NotFound(c, "chatroom not found")
			return
		}
		log.Ctx(ctx).Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to fetch hijack cost")
		response.Error(c, http.StatusBadGateway, "UPSTREAM_UNAVAILABLE", "hijack cost could not be fetched")
		return
	}

	response.Success(c, domain.HijackCostResponse{Cost: cost})
}

// PostChatroomMessage submits floor-holder text.
func (h *Handler) PostChatroomMessage(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	chatroomID := c.Param("id")

	var req domain.SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	err := h.chatrooms.PostMessage(ctx, userID, chatroomID, req.Text)
	switch {
	case err == nil:
		response.Accepted(c, gin.H{"submitted": true})
	case errors.Is(err, service.ErrChatroomNotFound):
		response.NotFound(c, "chatroom not found")
	case errors.Is(err, service.ErrChatroomWrapped):
		response.Conflict(c, "CHATROOM_WRAPPED", "the chatroom has concluded")
	case errors.Is(err, service.ErrNotYourTurn):
		response.Forbidden(c, "another user holds the floor")
	case errors.Is(err, service.ErrStaleState):
		response.Conflict(c, "STALE_STATE", "room state was stale, re-read and retry")
	default:
		log.Ctx(ctx).Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("chatroom post failed")
		response.BadGateway(c, "SEND_FAILED", "message could not be submitted")
	}
}

// RegisterHijack places a bid for the floor.
func (h *Handler) RegisterHijack(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	chatroomID := c.Param("id")

	var req domain.HijackBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	snapshot, err := h.chatrooms.Bid(ctx, userID, chatroomID, req.Cost)
	h.respondHijack(c, chatroomID, snapshot, err)
}

// DefendHijack cancels the outstanding bid against the caller.
func (h *Handler) DefendHijack(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	chatroomID := c.Param("id")

	snapshot, err := h.chatrooms.Defend(ctx, userID, chatroomID)
	h.respondHijack(c, chatroomID, snapshot, err)
}

func (h *Handler) respondHijack(c *gin.Context, chatroomID string, snapshot *domain.HijackSnapshot, err error) {
	switch {
	case err == nil:
		response.Accepted(c, snapshot)
	case errors.Is(err, service.ErrChatroomNotFound):
		response.NotFound(c, "chatroom not found")
	case errors.Is(err, service.ErrChatroomWrapped):
		response.Conflict(c, "CHATROOM_WRAPPED", "the chatroom has concluded")
	case errors.Is(err, service.ErrStaleState):
		response.Conflict(c, "STALE_STATE", "room state was stale, re-read and retry")
	case errors.Is(err, service.ErrHijackFailed):
		response.BadGateway(c, "HIJACK_FAILED", "the backend rejected the hijack action")
	case errors.Is(err, hijack.ErrSelfBid):
		response.BadRequest(c, "the current speaker cannot bid on their own floor")
	case errors.Is(err, hijack.ErrBidTooLow):
		response.Conflict(c, "BID_TOO_LOW", "a higher bid is already outstanding")
	case errors.Is(err, hijack.ErrNotSpeaker):
		response.Forbidden(c, "only the current speaker can defend")
	case errors.Is(err, hijack.ErrNotContested):
		response.Conflict(c, "NOT_CONTESTED", "no hijack is outstanding")
	default:
		log.Ctx(c.Request.Context()).Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("hijack action failed")
		response.InternalError(c, "hijack action failed")
	}
}

// LeaveChatroom detaches the caller from a room.
func (h *Handler) LeaveChatroom(c *gin.Context) {
	ctx := c.Request.Context()

	userID := middleware.GetUserID(c)
	chatroomID := c.Param("id")

	if err := h.chatrooms.Detach(ctx, userID, chatroomID); err != nil {
		log.Ctx(ctx).Error().Err(err).Str(log.FieldChatroomID, chatroomID).Msg("failed to leave chatroom")
		response.InternalError(c, "failed to leave chatroom")
		return
	}

	response.Success(c, gin.H{"left": chatroomID})
}
