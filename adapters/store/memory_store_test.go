package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/layer-3/siweauth/core"
	"github.com/stretchr/testify/suite"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)}
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

type NonceStoreSuite struct {
	suite.Suite
	ctx   context.Context
	clock *fakeClock
	store *MemoryNonceStore
}

func TestNonceStoreSuite(t *testing.T) {
	suite.Run(t, new(NonceStoreSuite))
}

func (s *NonceStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.store = NewMemoryNonceStore(5*time.Minute, WithClock(s.clock.Now))
}

func (s *NonceStoreSuite) TestIssue() {
	s.Run("issues unique 128-bit hex nonces", func() {
		seen := make(map[string]bool)
		for i := 0; i < 100; i++ {
			nonce, err := s.store.Issue(s.ctx)
			s.Require().NoError(err)
			s.Len(nonce.Value, NonceBytes*2)
			s.False(seen[nonce.Value])
			seen[nonce.Value] = true
		}
	})

	s.Run("sets expiry from ttl", func() {
		nonce, err := s.store.Issue(s.ctx)
		s.Require().NoError(err)
		s.Equal(s.clock.Now(), nonce.IssuedAt)
		s.Equal(s.clock.Now().Add(5*time.Minute), nonce.ExpiresAt)
		s.False(nonce.Consumed)
	})
}

func (s *NonceStoreSuite) TestConsume() {
	s.Run("succeeds exactly once", func() {
		nonce, err := s.store.Issue(s.ctx)
		s.Require().NoError(err)

		s.Require().NoError(s.store.Consume(s.ctx, nonce.Value))
		s.Require().ErrorIs(s.store.Consume(s.ctx, nonce.Value), core.ErrNonceInvalid)
	})

	s.Run("rejects unknown nonces", func() {
		s.Require().ErrorIs(s.store.Consume(s.ctx, "deadbeef"), core.ErrNonceInvalid)
	})

	s.Run("rejects expired nonces", func() {
		nonce, err := s.store.Issue(s.ctx)
		s.Require().NoError(err)

		s.clock.Advance(5 * time.Minute)
		s.Require().ErrorIs(s.store.Consume(s.ctx, nonce.Value), core.ErrNonceInvalid)
	})

	s.Run("only one of many concurrent consumers wins", func() {
		nonce, err := s.store.Issue(s.ctx)
		s.Require().NoError(err)

		const goroutines = 64
		var (
			wg        sync.WaitGroup
			successes atomic.Int32
			invalid   atomic.Int32
			start     = make(chan struct{})
		)
		for i := 0; i < goroutines; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				switch err := s.store.Consume(s.ctx, nonce.Value); {
				case err == nil:
					successes.Add(1)
				case err == core.ErrNonceInvalid:
					invalid.Add(1)
				}
			}()
		}
		close(start)
		wg.Wait()

		s.Equal(int32(1), successes.Load())
		s.Equal(int32(goroutines-1), invalid.Load())
	})
}

func (s *NonceStoreSuite) TestLookup() {
	nonce, err := s.store.Issue(s.ctx)
	s.Require().NoError(err)

	found, err := s.store.Lookup(s.ctx, nonce.Value)
	s.Require().NoError(err)
	s.Equal(nonce, found)

	s.Require().NoError(s.store.Consume(s.ctx, nonce.Value), "lookup does not spend the nonce")

	_, err = s.store.Lookup(s.ctx, nonce.Value)
	s.Require().ErrorIs(err, core.ErrNonceInvalid)
}

func (s *NonceStoreSuite) TestSweep() {
	old, err := s.store.Issue(s.ctx)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Consume(s.ctx, old.Value))

	s.clock.Advance(4 * time.Minute)
	fresh, err := s.store.Issue(s.ctx)
	s.Require().NoError(err)

	s.Equal(0, s.store.Sweep(), "consumed nonces stay until expiry")
	s.clock.Advance(time.Minute)
	s.Equal(1, s.store.Sweep())
	s.Equal(1, s.store.Len())

	_, err = s.store.Lookup(s.ctx, fresh.Value)
	s.Require().NoError(err)
}

type SessionStoreSuite struct {
	suite.Suite
	ctx   context.Context
	clock *fakeClock
	store *MemorySessionStore
}

func TestSessionStoreSuite(t *testing.T) {
	suite.Run(t, new(SessionStoreSuite))
}

func (s *SessionStoreSuite) SetupTest() {
	s.ctx = context.Background()
	s.clock = newFakeClock()
	s.store = NewMemorySessionStore(WithClock(s.clock.Now))
}

func (s *SessionStoreSuite) newSession(id string) *core.Session {
	return &core.Session{
		ID:        id,
		Address:   "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266",
		IssuedAt:  s.clock.Now(),
		ExpiresAt: s.clock.Now().Add(time.Hour),
	}
}

func (s *SessionStoreSuite) TestLifecycle() {
	s.Run("returns stored session until expiry", func() {
		session := s.newSession("a")
		s.Require().NoError(s.store.Create(s.ctx, session))

		found, err := s.store.Get(s.ctx, "a")
		s.Require().NoError(err)
		s.Equal(session, found)

		s.clock.Advance(time.Hour)
		_, err = s.store.Get(s.ctx, "a")
		s.Require().ErrorIs(err, core.ErrNotAuthenticated)
	})

	s.Run("returns ErrNotAuthenticated for unknown ids", func() {
		_, err := s.store.Get(s.ctx, "missing")
		s.Require().ErrorIs(err, core.ErrNotAuthenticated)
	})

	s.Run("delete is idempotent", func() {
		s.Require().NoError(s.store.Create(s.ctx, s.newSession("b")))
		s.Require().NoError(s.store.Delete(s.ctx, "b"))
		s.Require().NoError(s.store.Delete(s.ctx, "b"))

		_, err := s.store.Get(s.ctx, "b")
		s.Require().ErrorIs(err, core.ErrNotAuthenticated)
	})
}

func (s *SessionStoreSuite) TestTouch() {
	session := s.newSession("c")
	s.Require().NoError(s.store.Create(s.ctx, session))

	s.clock.Advance(50 * time.Minute)
	extended := *session
	extended.ExpiresAt = s.clock.Now().Add(time.Hour)
	s.Require().NoError(s.store.Touch(s.ctx, "c", &extended))

	s.clock.Advance(30 * time.Minute)
	found, err := s.store.Get(s.ctx, "c")
	s.Require().NoError(err)
	s.Equal(extended.ExpiresAt, found.ExpiresAt)

	s.clock.Advance(time.Hour)
	s.Require().ErrorIs(s.store.Touch(s.ctx, "c", &extended), core.ErrNotAuthenticated)
	s.Equal(1, s.store.Sweep())
}

func TestMemoryUserStore(t *testing.T) {
	ctx := context.Background()
	users := NewMemoryUserStore()
	address := "0xF39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

	const goroutines = 32
	var (
		wg      sync.WaitGroup
		created atomic.Int32
		ids     sync.Map
	)
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			user, isNew, err := users.FindOrCreate(ctx, address)
			if err != nil {
				t.Error(err)
				return
			}
			if isNew {
				created.Add(1)
			}
			ids.Store(user.ID, true)
		}()
	}
	wg.Wait()

	if created.Load() != 1 {
		t.Fatalf("expected exactly one creation, got %d", created.Load())
	}
	count := 0
	ids.Range(func(_, _ any) bool { count++; return true })
	if count != 1 {
		t.Fatalf("expected a single user id, got %d", count)
	}

	user, err := users.FindByAddress(ctx, "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266")
	if err != nil {
		t.Fatal(err)
	}
	if user.Address != core.NormalizeAddress(address) {
		t.Fatalf("address not stored lower-case: %s", user.Address)
	}

	if _, err := users.FindByAddress(ctx, "0x0000000000000000000000000000000000000001"); err != core.ErrNotAuthenticated {
		t.Fatalf("expected ErrNotAuthenticated, got %v", err)
	}
}
