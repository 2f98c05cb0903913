package store

import (
	"context"
	"sync"

	authclient "github.com/goliatone/go-auth-client"
)

var _ authclient.TokenStore = (*MemoryStore)(nil)

// MemoryStore keeps credentials in process memory. Nothing survives a
// restart; it is the default for tests and short-lived tools.
type MemoryStore struct {
	mu   sync.RWMutex
	pair *authclient.TokenPair
	user *authclient.User
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(_ context.Context, pair authclient.TokenPair) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = &pair
	return nil
}

func (s *MemoryStore) Load(_ context.Context) (*authclient.TokenPair, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.pair == nil {
		return nil, nil
	}
	pair := *s.pair
	return &pair, nil
}

func (s *MemoryStore) Clear(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pair = nil
	return nil
}

func (s *MemoryStore) SaveUser(_ context.Context, user *authclient.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user.Clone()
	return nil
}

func (s *MemoryStore) LoadUser(_ context.Context) (*authclient.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user.Clone(), nil
}

func (s *MemoryStore) ClearUser(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = nil
	return nil
}
