package profile

import (
	"context"
	"sync"
	"time"

	"github.com/stagechat/session-gateway/internal/domain"
)

type memoryEntry struct {
	profile   domain.UserProfile
	expiresAt time.Time
}

// MemoryCache is a process-local Cache used when Redis is not
// configured, and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry)}
}

func (c *MemoryCache) Get(_ context.Context, userID string) (*domain.UserProfile, error) {
	c.mu.RLock()
	entry, ok := c.entries[userID]
	c.mu.RUnlock()

	if !ok || (!entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt)) {
		return nil, ErrCacheMiss
	}

	profile := entry.profile
	return &profile, nil
}

func (c *MemoryCache) Has(ctx context.Context, userID string) (bool, error) {
	_, err := c.Get(ctx, userID)
	if err == nil {
		return true, nil
	}
	if err == ErrCacheMiss {
		return false, nil
	}
	return false, err
}

func (c *MemoryCache) AddMany(_ context.Context, profiles []domain.UserProfile, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, profile := range profiles {
		c.entries[profile.ID] = memoryEntry{profile: profile, expiresAt: expiresAt}
	}
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, userIDs ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		delete(c.entries, id)
	}
	return nil
}

func (c *MemoryCache) Close() error {
	return nil
}
