package profile

import (
	"context"
	"errors"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
)

var ErrCacheMiss = errors.New("cache miss")

// Cache stores resolved user profiles so chatroom transcripts can be
// rendered without re-fetching identities on every event.
type Cache interface {
	Get(ctx context.Context, userID string) (*domain.UserProfile, error)
	Has(ctx context.Context, userID string) (bool, error)
	AddMany(ctx context.Context, profiles []domain.UserProfile, ttl time.Duration) error
	Delete(ctx context.Context, userIDs ...string) error
	Close() error
}
