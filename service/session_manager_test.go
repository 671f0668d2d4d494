package service

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/layer-3/siweauth/adapters/store"
	"github.com/layer-3/siweauth/adapters/tokenizer"
	"github.com/layer-3/siweauth/core"
	"github.com/layer-3/siweauth/mocks"
	"github.com/layer-3/siweauth/ports"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

const testIssuer = "siweauth-test"

// fakeClock starts at the wall clock so that JWT validation, which always
// uses real time, agrees with the stores.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTokenizer(t *testing.T) *tokenizer.JWTTokenizer {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	return tokenizer.NewJWTTokenizer(key, testIssuer)
}

// flakySessions fails the next failCreate calls to Create and remembers
// the last session it stored.
type flakySessions struct {
	ports.SessionStore
	failCreate int
	last       string
}

func (f *flakySessions) Create(ctx context.Context, session *core.Session) error {
	if f.failCreate > 0 {
		f.failCreate--
		return core.ErrStoreUnavailable
	}
	f.last = session.ID
	return f.SessionStore.Create(ctx, session)
}

// flakyUsers fails the next failFind calls to FindOrCreate
type flakyUsers struct {
	ports.UserStore
	failFind int
}

func (f *flakyUsers) FindOrCreate(ctx context.Context, address string) (*core.User, bool, error) {
	if f.failFind > 0 {
		f.failFind--
		return nil, false, core.ErrStoreUnavailable
	}
	return f.UserStore.FindOrCreate(ctx, address)
}

type SessionManagerSuite struct {
	suite.Suite
	ctx       context.Context
	clock     *fakeClock
	sessions  *store.MemorySessionStore
	users     *store.MemoryUserStore
	tokenizer *tokenizer.JWTTokenizer
}

func TestSessionManagerSuite(t *testing.T) {
	suite.Run(t, new(SessionManagerSuite))
}

func (s *SessionManagerSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.sessions = store.NewMemorySessionStore(store.WithClock(s.clock.Now))
	s.users = store.NewMemoryUserStore(store.WithClock(s.clock.Now))
	s.tokenizer = newTestTokenizer(s.T())
}

func (s *SessionManagerSuite) manager(opts ...SessionOption) *SessionManager {
	opts = append([]SessionOption{WithSessionClock(s.clock.Now)}, opts...)
	return NewSessionManager(s.sessions, s.users, s.tokenizer, opts...)
}

func (s *SessionManagerSuite) TestIssue() {
	m := s.manager()
	account := "0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	first, err := m.Issue(s.ctx, account)
	s.Require().NoError(err)
	s.True(first.IsNew)
	s.Equal("0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266", first.Session.Address)
	s.Len(first.Session.ID, sessionIDBytes*2)
	s.Equal(s.clock.Now().Add(DefaultSessionTTL), first.Session.ExpiresAt)
	s.NotEmpty(first.Token)

	second, err := m.Issue(s.ctx, account)
	s.Require().NoError(err)
	s.False(second.IsNew)
	s.Equal(first.User.ID, second.User.ID)
	s.NotEqual(first.Session.ID, second.Session.ID)
}

func (s *SessionManagerSuite) TestCurrent() {
	m := s.manager(WithSessionTTL(30 * time.Minute))

	issued, err := m.Issue(s.ctx, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	s.Require().NoError(err)

	s.Run("resolves a live session", func() {
		user, err := m.Current(s.ctx, issued.Token)
		s.Require().NoError(err)
		s.Equal(issued.User.ID, user.ID)
		s.Equal(issued.Session.Address, user.Address)
	})

	s.Run("rejects empty and forged credentials", func() {
		_, err := m.Current(s.ctx, "")
		s.ErrorIs(err, core.ErrNotAuthenticated)

		_, err = m.Current(s.ctx, issued.Token+"x")
		s.ErrorIs(err, core.ErrNotAuthenticated)

		other := NewSessionManager(s.sessions, s.users, newTestTokenizer(s.T()))
		forged, err := other.tokenizer.SessionToToken(issued.Session)
		s.Require().NoError(err)
		_, err = m.Current(s.ctx, forged)
		s.ErrorIs(err, core.ErrNotAuthenticated)
	})

	s.Run("fixed sessions expire after the ttl", func() {
		s.clock.Advance(30 * time.Minute)
		_, err := m.Current(s.ctx, issued.Token)
		s.ErrorIs(err, core.ErrNotAuthenticated)
	})
}

func (s *SessionManagerSuite) TestSlidingExpiry() {
	m := s.manager(
		WithSessionTTL(time.Hour),
		WithExpiryPolicy(ExpirySliding, 90*time.Minute),
	)
	s.Equal(90*time.Minute, m.CookieMaxAge())

	issued, err := m.Issue(s.ctx, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	s.Require().NoError(err)

	claimed, err := s.tokenizer.TokenToSession(issued.Token)
	s.Require().NoError(err)
	s.Equal(issued.Session.IssuedAt.Add(90*time.Minute).Unix(), claimed.ExpiresAt.Unix())

	s.clock.Advance(40 * time.Minute)
	_, err = m.Current(s.ctx, issued.Token)
	s.Require().NoError(err)

	// Past the original hour, still alive because the window moved
	s.clock.Advance(40 * time.Minute)
	_, err = m.Current(s.ctx, issued.Token)
	s.Require().NoError(err)

	s.clock.Advance(11 * time.Minute)
	_, err = m.Current(s.ctx, issued.Token)
	s.ErrorIs(err, core.ErrNotAuthenticated)
}

func (s *SessionManagerSuite) TestRevoke() {
	m := s.manager()
	s.Equal(DefaultSessionTTL, m.CookieMaxAge())

	issued, err := m.Issue(s.ctx, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	s.Require().NoError(err)

	revoked, err := m.Revoke(s.ctx, issued.Token)
	s.Require().NoError(err)
	s.Equal(issued.Session.ID, revoked.ID)

	_, err = m.Current(s.ctx, issued.Token)
	s.ErrorIs(err, core.ErrNotAuthenticated)

	revoked, err = m.Revoke(s.ctx, issued.Token)
	s.NoError(err)
	s.Nil(revoked)

	revoked, err = m.Revoke(s.ctx, "not-a-token")
	s.NoError(err)
	s.Nil(revoked)
}

func (s *SessionManagerSuite) TestRegistryGate() {
	ctrl := gomock.NewController(s.T())
	registry := mocks.NewMockRegistry(ctrl)
	m := s.manager(WithRegistry(registry))

	registered := "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	unknown := "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	broken := "0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc"

	registry.EXPECT().IsRegistered(gomock.Any(), registered).Return(true, nil)
	registry.EXPECT().IsRegistered(gomock.Any(), unknown).Return(false, nil)
	registry.EXPECT().IsRegistered(gomock.Any(), broken).Return(false, errors.New("rpc down"))

	_, err := m.Issue(s.ctx, registered)
	s.NoError(err)

	_, err = m.Issue(s.ctx, unknown)
	s.ErrorIs(err, core.ErrNotRegistered)
	_, err = s.users.FindByAddress(s.ctx, unknown)
	s.ErrorIs(err, core.ErrNotAuthenticated, "no user is created for a refused account")

	_, err = m.Issue(s.ctx, broken)
	s.Error(err)
	s.NotErrorIs(err, core.ErrNotRegistered)
}

func (s *SessionManagerSuite) TestIssueLeavesNoPartialState() {
	account := "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
	sessions := &flakySessions{SessionStore: s.sessions, failCreate: 1}
	users := &flakyUsers{UserStore: s.users, failFind: 1}
	m := NewSessionManager(sessions, users, s.tokenizer, WithSessionClock(s.clock.Now))

	s.Run("session store failure creates no user", func() {
		_, err := m.Issue(s.ctx, account)
		s.ErrorIs(err, core.ErrStoreUnavailable)
		_, err = s.users.FindByAddress(s.ctx, account)
		s.ErrorIs(err, core.ErrNotAuthenticated)
	})

	s.Run("user store failure removes the session", func() {
		_, err := m.Issue(s.ctx, account)
		s.ErrorIs(err, core.ErrStoreUnavailable)
		s.Require().NotEmpty(sessions.last)
		_, err = s.sessions.Get(s.ctx, sessions.last)
		s.ErrorIs(err, core.ErrNotAuthenticated)
	})

	s.Run("first successful issue reports a new user", func() {
		issued, err := m.Issue(s.ctx, account)
		s.Require().NoError(err)
		s.True(issued.IsNew)
	})
}
