package hub

import (
	"testing"

	"github.com/stagechat/session-gateway/internal/config"
)

func TestChatroomWatcherCount(t *testing.T) {
	h := NewHub(config.WebSocketConfig{})
	a := &Client{ID: "a"}
	b := &Client{ID: "b"}

	h.JoinChatroom(a, "room-1")
	h.JoinChatroom(b, "room-1")
	if got := h.ChatroomClientCount("room-1"); got != 2 {
		t.Fatalf("watcher count = %d, want 2", got)
	}
	if got := h.ChatroomClientCount("room-2"); got != 0 {
		t.Fatalf("empty room watcher count = %d, want 0", got)
	}

	h.LeaveChatroom(a, "room-1")
	if got := h.ChatroomClientCount("room-1"); got != 1 {
		t.Fatalf("watcher count after leave = %d, want 1", got)
	}

	h.LeaveChatroom(b, "room-1")
	if got := h.ChatroomClientCount("room-1"); got != 0 {
		t.Fatalf("watcher count after last leave = %d, want 0", got)
	}
}
