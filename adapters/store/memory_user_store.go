package store

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/layer-3/siweauth/core"
)

// MemoryUserStore keeps users in a map keyed by lower-cased address
type MemoryUserStore struct {
	users map[string]core.User
	clock Clock
	mu    sync.Mutex
}

// NewMemoryUserStore creates an empty user store
func NewMemoryUserStore(opts ...Option) *MemoryUserStore {
	o := buildOptions("", opts)
	return &MemoryUserStore{
		users: make(map[string]core.User),
		clock: o.clock,
	}
}

// FindOrCreate looks up or inserts the user for address atomically
func (s *MemoryUserStore) FindOrCreate(ctx context.Context, address string) (*core.User, bool, error) {
	address = core.NormalizeAddress(address)

	s.mu.Lock()
	defer s.mu.Unlock()

	if user, ok := s.users[address]; ok {
		return &user, false, nil
	}
	user := core.User{
		ID:        uuid.New().String(),
		Address:   address,
		CreatedAt: s.clock(),
	}
	s.users[address] = user
	return &user, true, nil
}

// FindByAddress returns the stored user
func (s *MemoryUserStore) FindByAddress(ctx context.Context, address string) (*core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[core.NormalizeAddress(address)]
	if !ok {
		return nil, core.ErrNotAuthenticated
	}
	return &user, nil
}
