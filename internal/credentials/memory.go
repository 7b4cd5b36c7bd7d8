package credentials

import (
	"context"
	"sync"

	"github.com/knowit/knowit/internal/domain"
)

// Memory is an in-process Store for tests and ephemeral sessions.
// The single mutex covers the whole pair, which is what makes
// SaveTokenPair and TokenPair atomic with respect to each other.
type Memory struct {
	mu   sync.RWMutex
	pair *domain.TokenPair
	user string
}

// NewMemory returns an empty in-memory credential store.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) AccessToken(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return "", nil
	}
	return m.pair.AccessToken, nil
}

func (m *Memory) RefreshToken(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return "", nil
	}
	return m.pair.RefreshToken, nil
}

func (m *Memory) TokenPair(_ context.Context) (*domain.TokenPair, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.pair == nil {
		return nil, nil
	}
	pair := *m.pair
	return &pair, nil
}

func (m *Memory) SaveTokenPair(_ context.Context, pair domain.TokenPair) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = &pair
	return nil
}

func (m *Memory) ClearTokens(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pair = nil
	return nil
}

func (m *Memory) CachedUser(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.user, nil
}

func (m *Memory) SaveCachedUser(_ context.Context, encoded string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = encoded
	return nil
}

func (m *Memory) DeleteCachedUser(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.user = ""
	return nil
}
