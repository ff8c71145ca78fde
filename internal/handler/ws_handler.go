package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stagechat/session-gateway/internal/config"
	"github.com/stagechat/session-gateway/internal/hub"
	"github.com/stagechat/session-gateway/pkg/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WebSocket feed message types. The feed is read-mostly: clients join
// chatrooms to receive the same events the SSE endpoint carries.
const (
	wsTypeJoinChatroom  = "join_chatroom"
	wsTypeJoined        = "joined"
	wsTypeLeaveChatroom = "leave_chatroom"
	wsTypePing          = "ping"
	wsTypePong          = "pong"
	wsTypeError         = "error"
)

type wsMessage struct {
	Type       string `json:"type"`
	ChatroomID string `json:"chatroom_id,omitempty"`
}

type WSHandler struct {
	hub   *hub.Hub
	wsCfg config.WebSocketConfig
}

func NewWSHandler(h *hub.Hub, wsCfg config.WebSocketConfig) *WSHandler {
	return &WSHandler{
		hub:   h,
		wsCfg: wsCfg,
	}
}

// HandleWebSocket is GET /ws.
func (h *WSHandler) HandleWebSocket(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Ctx(c.Request.Context()).Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := hub.NewClient(uuid.New().String(), "", h.hub, conn, h.wsCfg)

	h.hub.Register(client)

	go client.WritePump()
	go client.ReadPump(h.handleMessage)
}

func (h *WSHandler) handleMessage(client *hub.Client, message []byte) {
	var msg wsMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		client.SendMessage(map[string]string{"type": wsTypeError, "message": "invalid message format"})
		return
	}

	switch msg.Type {
	case wsTypeJoinChatroom:
		if msg.ChatroomID == "" {
			client.SendMessage(map[string]string{"type": wsTypeError, "message": "chatroom_id is required"})
			return
		}
		h.hub.JoinChatroom(client, msg.ChatroomID)
		client.SendMessage(map[string]interface{}{
			"type":        wsTypeJoined,
			"chatroom_id": msg.ChatroomID,
			"watchers":    h.hub.ChatroomClientCount(msg.ChatroomID),
		})

	case wsTypeLeaveChatroom:
		if msg.ChatroomID == "" {
			client.SendMessage(map[string]string{"type": wsTypeError, "message": "chatroom_id is required"})
			return
		}
		h.hub.LeaveChatroom(client, msg.ChatroomID)

	case wsTypePing:
		client.SendMessage(map[string]string{"type": wsTypePong})

	default:
		client.SendMessage(map[string]string{"type": wsTypeError, "message": "unknown message type"})
	}
}
