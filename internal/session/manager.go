package session

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Manager hands out loaded sessions, one per conversation. Concurrent
// requests for the same conversation share a single history load via
// singleflight; a failed load is not cached, so the next request
// retries it.
type Manager struct {
	backend Backend

	mu       sync.RWMutex
	sessions map[string]*Session
	sf       singleflight.Group
}

// NewManager creates a session manager.
func NewManager(backend Backend) *Manager {
	return &Manager{
		backend:  backend,
		sessions: make(map[string]*Session),
	}
}

// Session returns the loaded session for a conversation, creating and
// loading it on first use.
func (m *Manager) Session(ctx context.Context, conversationID, userID, userName string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[conversationID]
	m.mu.RUnlock()
	if ok {
		return s, nil
	}

	result, err, _ := m.sf.Do(conversationID, func() (interface{}, error) {
		s := New(conversationID, userID, userName, m.backend)
		if err := s.Load(ctx); err != nil {
			return nil, err
		}

		m.mu.Lock()
		m.sessions[conversationID] = s
		m.mu.Unlock()
		return s, nil
	})
	if err != nil {
		return nil, err
	}

	return result.(*Session), nil
}

// Evict drops a cached session, forcing a reload on next use.
func (m *Manager) Evict(conversationID string) {
	m.mu.Lock()
	delete(m.sessions, conversationID)
	m.mu.Unlock()
}
