package pubsub

import (
	"context"
	"encoding/json"
	"time"
)

// Event represents a message published to the event bus.
type Event struct {
	Type       string          `json:"type"`
	ChatroomID string          `json:"chatroom_id"`
	Payload    json.RawMessage `json:"payload"`
	Timestamp  time.Time       `json:"timestamp"`
}

// NewEvent creates a new event with the current timestamp.
func NewEvent(eventType, chatroomID string, payload interface{}) (*Event, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Event{
		Type:       eventType,
		ChatroomID: chatroomID,
		Payload:    data,
		Timestamp:  time.Now(),
	}, nil
}

// UnsubscribeFunc stops the subscription it was returned with. Safe to
// call more than once.
type UnsubscribeFunc func()

// Publisher publishes events to the event bus.
type Publisher interface {
	Publish(ctx context.Context, channel string, event *Event) error
}

// Subscriber subscribes to events from the event bus. Each Subscribe
// call is an independent subscription, even on the same channel;
// cancelling ctx or calling the returned UnsubscribeFunc stops only
// that one and closes its event channel.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan *Event, UnsubscribeFunc, error)
}

// PubSub combines Publisher and Subscriber interfaces.
type PubSub interface {
	Publisher
	Subscriber
	Close() error
}
