package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/layer-3/siweauth/core"
)

// MemoryNonceStore is an in-memory nonce store for single-instance
// deployments and tests
type MemoryNonceStore struct {
	nonces map[string]core.Nonce
	ttl    time.Duration
	clock  Clock
	mu     sync.Mutex
}

// NewMemoryNonceStore creates a nonce store whose nonces live for ttl
func NewMemoryNonceStore(ttl time.Duration, opts ...Option) *MemoryNonceStore {
	o := buildOptions("", opts)
	return &MemoryNonceStore{
		nonces: make(map[string]core.Nonce),
		ttl:    ttl,
		clock:  o.clock,
	}
}

// Issue records a fresh nonce
func (s *MemoryNonceStore) Issue(ctx context.Context) (core.Nonce, error) {
	value, err := GenerateToken(NonceBytes)
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to generate nonce: %w", err)
	}

	now := s.clock()
	nonce := core.Nonce{
		Value:     value,
		IssuedAt:  now,
		ExpiresAt: now.Add(s.ttl),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.nonces[value] = nonce
	return nonce, nil
}

// Lookup returns a live nonce without spending it
func (s *MemoryNonceStore) Lookup(ctx context.Context, value string) (core.Nonce, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.nonces[value]
	if !ok || nonce.Consumed || nonce.Expired(s.clock()) {
		return core.Nonce{}, core.ErrNonceInvalid
	}
	return nonce, nil
}

// Consume spends a live nonce. Check and mark happen under one lock.
func (s *MemoryNonceStore) Consume(ctx context.Context, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	nonce, ok := s.nonces[value]
	if !ok || nonce.Consumed || nonce.Expired(s.clock()) {
		return core.ErrNonceInvalid
	}
	nonce.Consumed = true
	s.nonces[value] = nonce
	return nil
}

// Sweep drops expired nonces and returns how many were removed.
// Consumed nonces are kept until they expire.
func (s *MemoryNonceStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for value, nonce := range s.nonces {
		if nonce.Expired(now) {
			delete(s.nonces, value)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked nonces
func (s *MemoryNonceStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.nonces)
}

// MemorySessionStore is an in-memory session store
type MemorySessionStore struct {
	sessions map[string]core.Session
	clock    Clock
	mu       sync.RWMutex
}

// NewMemorySessionStore creates an empty session store
func NewMemorySessionStore(opts ...Option) *MemorySessionStore {
	o := buildOptions("", opts)
	return &MemorySessionStore{
		sessions: make(map[string]core.Session),
		clock:    o.clock,
	}
}

// Create stores session
func (s *MemorySessionStore) Create(ctx context.Context, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[session.ID] = *session
	return nil
}

// Get returns a live session
func (s *MemorySessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok || session.Expired(s.clock()) {
		return nil, core.ErrNotAuthenticated
	}
	return &session, nil
}

// Touch replaces the expiry of a live session
func (s *MemorySessionStore) Touch(ctx context.Context, id string, session *core.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sessions[id]
	if !ok || stored.Expired(s.clock()) {
		return core.ErrNotAuthenticated
	}
	stored.ExpiresAt = session.ExpiresAt
	s.sessions[id] = stored
	return nil
}

// Delete removes a session; unknown ids are ignored
func (s *MemorySessionStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, id)
	return nil
}

// Sweep drops expired sessions and returns how many were removed
func (s *MemorySessionStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	return removed
}
