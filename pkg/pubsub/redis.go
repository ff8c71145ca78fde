package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/stagechat/session-gateway/pkg/log"
)

// Subscriber channels are buffered; a subscriber that falls this far
// behind starts losing events. Lost events are safe to drop because
// every consumer treats them as resync triggers, not state.
const subscriberBuffer = 100

// RedisPubSub is the Redis-backed event bus shared by gateway
// instances. One instance publishes a chatroom event, every instance
// streaming that chatroom delivers it to its own clients. Several
// viewers of the same chatroom each hold their own subscription.
type RedisPubSub struct {
	client *redis.Client

	mu            sync.Mutex
	subscriptions map[*redis.PubSub]struct{}
}

// NewRedisPubSub connects to Redis and verifies the connection.
func NewRedisPubSub(cfg RedisConfig) (*RedisPubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Address,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisPubSub{
		client:        client,
		subscriptions: make(map[*redis.PubSub]struct{}),
	}, nil
}

// Publish sends an event to the named channel.
func (r *RedisPubSub) Publish(ctx context.Context, channel string, event *Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	return r.client.Publish(ctx, channel, data).Err()
}

// Subscribe opens a new subscription to the channel and delivers its
// events until ctx is cancelled or the returned UnsubscribeFunc is
// called. Closing one subscription never touches another, so two
// viewers of the same chatroom detach independently.
func (r *RedisPubSub) Subscribe(ctx context.Context, channel string) (<-chan *Event, UnsubscribeFunc, error) {
	sub := r.client.Subscribe(ctx, channel)

	r.mu.Lock()
	r.subscriptions[sub] = struct{}{}
	r.mu.Unlock()

	events := make(chan *Event, subscriberBuffer)
	go r.deliver(ctx, channel, sub, events)

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subscriptions, sub)
			r.mu.Unlock()

			if err := sub.Close(); err != nil {
				log.L().Warn().Err(err).
					Str("channel", channel).
					Msg("failed to close subscription")
			}
		})
	}

	return events, unsubscribe, nil
}

// Close tears down every subscription and the client.
func (r *RedisPubSub) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for sub := range r.subscriptions {
		sub.Close()
	}
	r.subscriptions = make(map[*redis.PubSub]struct{})

	return r.client.Close()
}

func (r *RedisPubSub) deliver(ctx context.Context, channel string, sub *redis.PubSub, events chan<- *Event) {
	defer close(events)

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}

			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				log.L().Warn().Err(err).
					Str("channel", channel).
					Msg("dropping undecodable bus event")
				continue
			}

			select {
			case events <- &event:
			case <-ctx.Done():
				return
			default:
				log.L().Warn().
					Str("channel", channel).
					Str(log.FieldEventType, event.Type).
					Msg("subscriber lagging, event dropped")
			}
		}
	}
}
