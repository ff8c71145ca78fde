package stream

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
	"github.com/stagechat/session-gateway/pkg/log"
)

// Opener opens the upstream SSE stream for a chatroom. Implemented by
// the upstream HTTP client.
type Opener interface {
	OpenEventStream(ctx context.Context, chatroomID string) (io.ReadCloser, error)
}

// Handler receives decoded upstream events. Implemented by the
// chatroom runtime, which decides what to resynchronize.
type Handler interface {
	HandleEvent(ctx context.Context, chatroomID, name string, data []byte)
}

// Consumer tails a chatroom's SSE feed for as long as its context
// lives, reconnecting with a fixed pause after stream errors.
type Consumer struct {
	opener        Opener
	handler       Handler
	chatroomID    string
	reconnectWait time.Duration
}

// NewConsumer creates a consumer for one chatroom.
func NewConsumer(opener Opener, handler Handler, chatroomID string, reconnectWait time.Duration) *Consumer {
	if reconnectWait <= 0 {
		reconnectWait = 3 * time.Second
	}
	return &Consumer{
		opener:        opener,
		handler:       handler,
		chatroomID:    chatroomID,
		reconnectWait: reconnectWait,
	}
}

// Run blocks until ctx is cancelled. Detaching a chatroom cancels ctx,
// which closes the stream and ends the loop.
func (c *Consumer) Run(ctx context.Context) {
	logger := log.L().With().Str(log.FieldChatroomID, c.chatroomID).Logger()

	for {
		if err := c.consumeOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn().Err(err).Msg("event stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.reconnectWait):
		}
	}
}

func (c *Consumer) consumeOnce(ctx context.Context) error {
	body, err := c.opener.OpenEventStream(ctx, c.chatroomID)
	if err != nil {
		return err
	}
	defer body.Close()

	parser := NewParser(body)
	for {
		event, err := parser.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}

		if !domain.KnownEvent(event.Name) {
			log.L().Debug().
				Str(log.FieldChatroomID, c.chatroomID).
				Str(log.FieldEventType, event.Name).
				Msg("ignoring unknown upstream event")
			continue
		}

		c.handler.HandleEvent(ctx, c.chatroomID, event.Name, event.Data)
	}
}
