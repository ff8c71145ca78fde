// Package hub fans chatroom events out to connected WebSocket
// spectators. One client may watch one chatroom at a time.
package hub

import (
	"encoding/json"
	"sync"

	"github.com/stagechat/session-gateway/internal/config"
	"github.com/stagechat/session-gateway/pkg/log"
)

type Hub struct {
	clients    map[string]*Client            // clientID -> client
	chatrooms  map[string]map[string]*Client // chatroomID -> clientID -> client
	register   chan *Client
	unregister chan *Client
	broadcast  chan *ChatroomMessage
	mu         sync.RWMutex
	config     config.WebSocketConfig
}

type ChatroomMessage struct {
	ChatroomID string
	Message    []byte
	Exclude    string // Client ID to exclude
}

func NewHub(cfg config.WebSocketConfig) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		chatrooms:  make(map[string]map[string]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *ChatroomMessage, 256),
		config:     cfg,
	}
}

func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			log.L().Debug().Str("client_id", client.ID).Msg("client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				for chatroomID, watchers := range h.chatrooms {
					delete(watchers, client.ID)
					if len(watchers) == 0 {
						delete(h.chatrooms, chatroomID)
					}
				}
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()
			log.L().Debug().Str("client_id", client.ID).Msg("client unregistered")

		case msg := <-h.broadcast:
			h.mu.RLock()
			if watchers, ok := h.chatrooms[msg.ChatroomID]; ok {
				for clientID, client := range watchers {
					if clientID == msg.Exclude {
						continue
					}
					select {
					case client.Send <- msg.Message:
					default:
						go h.removeClient(client)
					}
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) Register(client *Client) {
	h.register <- client
}

func (h *Hub) Unregister(client *Client) {
	h.unregister <- client
}

func (h *Hub) JoinChatroom(client *Client, chatroomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.chatrooms[chatroomID]; !ok {
		h.chatrooms[chatroomID] = make(map[string]*Client)
	}
	h.chatrooms[chatroomID][client.ID] = client
	log.L().Info().Str("client_id", client.ID).Str(log.FieldChatroomID, chatroomID).Msg("client joined chatroom")
}

func (h *Hub) LeaveChatroom(client *Client, chatroomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if watchers, ok := h.chatrooms[chatroomID]; ok {
		delete(watchers, client.ID)
		if len(watchers) == 0 {
			delete(h.chatrooms, chatroomID)
		}
	}
	log.L().Info().Str("client_id", client.ID).Str(log.FieldChatroomID, chatroomID).Msg("client left chatroom")
}

func (h *Hub) BroadcastToChatroom(chatroomID string, message interface{}, exclude string) error {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}

	h.broadcast <- &ChatroomMessage{
		ChatroomID: chatroomID,
		Message:    data,
		Exclude:    exclude,
	}
	return nil
}

// ChatroomClientCount reports how many clients are watching a chatroom.
func (h *Hub) ChatroomClientCount(chatroomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if watchers, ok := h.chatrooms[chatroomID]; ok {
		return len(watchers)
	}
	return 0
}

func (h *Hub) removeClient(client *Client) {
	h.unregister <- client
}
