package pubsub

import "fmt"

// Channel naming conventions for the session gateway.
const (
	// Per-chatroom live event feed, fanned out to every gateway instance.
	ChannelChatroomEvents = "chatroom:%s:events"
)

// ChatroomEventsChannel returns the event feed channel for a chatroom.
func ChatroomEventsChannel(chatroomID string) string {
	return fmt.Sprintf(ChannelChatroomEvents, chatroomID)
}
