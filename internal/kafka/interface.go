package kafka

import (
	"context"

	"github.com/stagechat/session-gateway/internal/domain"
)

// ActivityProducer publishes session activity for the downstream
// points pipeline. Publishing is best effort; a broker outage never
// blocks a send or a hijack.
type ActivityProducer interface {
	ProduceActivity(ctx context.Context, activity *domain.SessionActivity) error
	Close() error
}

// NoopProducer is used when Kafka is not configured.
type NoopProducer struct{}

func (NoopProducer) ProduceActivity(context.Context, *domain.SessionActivity) error { return nil }
func (NoopProducer) Close() error                                                   { return nil }
