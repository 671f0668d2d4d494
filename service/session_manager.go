package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/layer-3/siweauth/core"
	"github.com/layer-3/siweauth/ports"
)

// ExpiryPolicy decides how a session's expiry moves after issuance
type ExpiryPolicy string

const (
	// ExpiryFixed ends the session ttl after issuance
	ExpiryFixed ExpiryPolicy = "fixed"
	// ExpirySliding pushes the expiry ttl past every successful Current,
	// capped at maxLifetime after issuance
	ExpirySliding ExpiryPolicy = "sliding"
)

const (
	DefaultSessionTTL  = time.Hour
	DefaultMaxLifetime = 7 * 24 * time.Hour
	sessionIDBytes     = 32
)

// IssuedSession is what SessionManager.Issue hands back
type IssuedSession struct {
	Session *core.Session
	User    *core.User
	Token   string
	IsNew   bool
}

// SessionManager turns verified accounts into sessions and resolves them
type SessionManager struct {
	sessions  ports.SessionStore
	users     ports.UserStore
	tokenizer ports.Tokenizer
	registry  ports.Registry

	ttl         time.Duration
	maxLifetime time.Duration
	policy      ExpiryPolicy
	clock       func() time.Time
}

// SessionOption configures a SessionManager
type SessionOption func(*SessionManager)

// WithSessionTTL sets the session lifetime (idle lifetime for sliding)
func WithSessionTTL(ttl time.Duration) SessionOption {
	return func(m *SessionManager) {
		if ttl > 0 {
			m.ttl = ttl
		}
	}
}

// WithExpiryPolicy selects fixed or sliding expiry
func WithExpiryPolicy(policy ExpiryPolicy, maxLifetime time.Duration) SessionOption {
	return func(m *SessionManager) {
		m.policy = policy
		if maxLifetime > 0 {
			m.maxLifetime = maxLifetime
		}
	}
}

// WithRegistry refuses sessions to accounts without an on-chain profile
func WithRegistry(registry ports.Registry) SessionOption {
	return func(m *SessionManager) {
		m.registry = registry
	}
}

// WithSessionClock sets the clock used for issuance and expiry
func WithSessionClock(clock func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if clock != nil {
			m.clock = clock
		}
	}
}

// NewSessionManager creates a session manager
func NewSessionManager(
	sessions ports.SessionStore,
	users ports.UserStore,
	tokenizer ports.Tokenizer,
	opts ...SessionOption,
) *SessionManager {
	m := &SessionManager{
		sessions:    sessions,
		users:       users,
		tokenizer:   tokenizer,
		ttl:         DefaultSessionTTL,
		maxLifetime: DefaultMaxLifetime,
		policy:      ExpiryFixed,
		clock:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Issue opens a session for account and looks up or creates its user.
// The session is stored first so a failed issue never leaves a user row
// behind; the session is removed again when the user step fails.
func (m *SessionManager) Issue(ctx context.Context, account string) (*IssuedSession, error) {
	account = core.NormalizeAddress(account)

	if m.registry != nil {
		registered, err := m.registry.IsRegistered(ctx, account)
		if err != nil {
			return nil, fmt.Errorf("failed to check registry: %w", err)
		}
		if !registered {
			return nil, core.ErrNotRegistered
		}
	}

	id, err := newSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session id: %w", err)
	}
	now := m.clock()
	session := &core.Session{
		ID:        id,
		Address:   account,
		IssuedAt:  now,
		ExpiresAt: now.Add(m.ttl),
	}
	token, err := m.tokenizer.SessionToToken(m.credential(session))
	if err != nil {
		return nil, fmt.Errorf("failed to create session token: %w", err)
	}
	if err := m.sessions.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to store session: %w", err)
	}

	user, created, err := m.users.FindOrCreate(ctx, account)
	if err != nil {
		if delErr := m.sessions.Delete(ctx, session.ID); delErr != nil {
			return nil, fmt.Errorf("failed to load user: %w (session cleanup: %v)", err, delErr)
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	return &IssuedSession{
		Session: session,
		User:    user,
		Token:   token,
		IsNew:   created,
	}, nil
}

// Current resolves token to its user. Expiry is checked on every call.
func (m *SessionManager) Current(ctx context.Context, token string) (*core.User, error) {
	session, err := m.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	if m.policy == ExpirySliding {
		extended := *session
		extended.ExpiresAt = m.clock().Add(m.ttl)
		if limit := session.IssuedAt.Add(m.maxLifetime); extended.ExpiresAt.After(limit) {
			extended.ExpiresAt = limit
		}
		if err := m.sessions.Touch(ctx, session.ID, &extended); err != nil {
			return nil, err
		}
	}

	user, err := m.users.FindByAddress(ctx, session.Address)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Revoke invalidates the session named by token. Unknown, expired or
// already revoked sessions are not an error; the revoked session is
// returned when there was one.
func (m *SessionManager) Revoke(ctx context.Context, token string) (*core.Session, error) {
	session, err := m.resolve(ctx, token)
	if err != nil {
		if errors.Is(err, core.ErrNotAuthenticated) {
			return nil, nil
		}
		return nil, err
	}
	if err := m.sessions.Delete(ctx, session.ID); err != nil {
		return nil, err
	}
	return session, nil
}

// CookieMaxAge is how long clients should keep the credential
func (m *SessionManager) CookieMaxAge() time.Duration {
	if m.policy == ExpirySliding {
		return m.maxLifetime
	}
	return m.ttl
}

func (m *SessionManager) resolve(ctx context.Context, token string) (*core.Session, error) {
	if token == "" {
		return nil, core.ErrNotAuthenticated
	}
	claimed, err := m.tokenizer.TokenToSession(token)
	if err != nil {
		return nil, core.ErrNotAuthenticated
	}
	session, err := m.sessions.Get(ctx, claimed.ID)
	if err != nil {
		return nil, err
	}
	if !core.SameAddress(session.Address, claimed.Address) || session.Expired(m.clock()) {
		return nil, core.ErrNotAuthenticated
	}
	return session, nil
}

// credential returns the session as the token should describe it. With
// sliding expiry the store owns the idle timeout, so the token carries
// only the absolute limit.
func (m *SessionManager) credential(session *core.Session) *core.Session {
	if m.policy != ExpirySliding {
		return session
	}
	c := *session
	c.ExpiresAt = session.IssuedAt.Add(m.maxLifetime)
	return &c
}

func newSessionID() (string, error) {
	b := make([]byte, sessionIDBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
