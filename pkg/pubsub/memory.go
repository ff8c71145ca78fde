package pubsub

import (
	"context"
	"sync"
)

// MemoryPubSub is an in-process event bus for tests and single-node
// runs without Redis. Delivery semantics mirror RedisPubSub: each
// Subscribe call is its own subscription and lagging subscribers lose
// events rather than block the publisher.
type MemoryPubSub struct {
	mu     sync.Mutex
	subs   map[string]map[int]*memorySub
	nextID int
}

type memorySub struct {
	ch   chan *Event
	once sync.Once
}

func (s *memorySub) close() {
	s.once.Do(func() { close(s.ch) })
}

// NewMemoryPubSub creates an empty in-process bus.
func NewMemoryPubSub() *MemoryPubSub {
	return &MemoryPubSub{subs: make(map[string]map[int]*memorySub)}
}

// Publish delivers the event to every current subscriber of the channel.
func (m *MemoryPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, sub := range m.subs[channel] {
		select {
		case sub.ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe opens a new subscription to the channel.
func (m *MemoryPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, UnsubscribeFunc, error) {
	sub := &memorySub{ch: make(chan *Event, subscriberBuffer)}

	m.mu.Lock()
	if m.subs[channel] == nil {
		m.subs[channel] = make(map[int]*memorySub)
	}
	id := m.nextID
	m.nextID++
	m.subs[channel][id] = sub
	m.mu.Unlock()

	unsubscribe := func() {
		m.mu.Lock()
		if watchers, ok := m.subs[channel]; ok {
			delete(watchers, id)
			if len(watchers) == 0 {
				delete(m.subs, channel)
			}
		}
		m.mu.Unlock()
		sub.close()
	}

	if ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			unsubscribe()
		}()
	}

	return sub.ch, unsubscribe, nil
}

// Close drops every subscription.
func (m *MemoryPubSub) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, watchers := range m.subs {
		for _, sub := range watchers {
			sub.close()
		}
	}
	m.subs = make(map[string]map[int]*memorySub)
	return nil
}
