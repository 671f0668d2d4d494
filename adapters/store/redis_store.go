package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/layer-3/siweauth/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// RedisNonceStore shares nonces between instances. Consume relies on
// GETDEL (Redis 6.2+) so only one caller can observe a given nonce.
type RedisNonceStore struct {
	client   *redis.Client
	ttl      time.Duration
	clock    Clock
	timeout  time.Duration
	prefix   string
	duration *prometheus.HistogramVec
}

// NewRedisNonceStore creates a Redis nonce store
func NewRedisNonceStore(client *redis.Client, ttl time.Duration, opts ...Option) *RedisNonceStore {
	o := buildOptions("siwe:nonce:", opts)
	return &RedisNonceStore{
		client:   client,
		ttl:      ttl,
		clock:    o.clock,
		timeout:  o.timeout,
		prefix:   o.prefix,
		duration: o.duration,
	}
}

// Issue records a fresh nonce with the store TTL
func (s *RedisNonceStore) Issue(ctx context.Context) (core.Nonce, error) {
	defer observe(s.duration, "nonce_issue", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

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

	ok, err := s.client.SetNX(ctx, s.prefix+value, nonce.ExpiresAt.UnixNano(), s.ttl).Result()
	if err != nil {
		return core.Nonce{}, fmt.Errorf("failed to store nonce: %w: %v", core.ErrStoreUnavailable, err)
	}
	if !ok {
		return core.Nonce{}, fmt.Errorf("nonce collision: %w", core.ErrStoreUnavailable)
	}
	return nonce, nil
}

// Lookup returns a live nonce without spending it
func (s *RedisNonceStore) Lookup(ctx context.Context, value string) (core.Nonce, error) {
	defer observe(s.duration, "nonce_lookup", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.prefix+value).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.Nonce{}, core.ErrNonceInvalid
		}
		return core.Nonce{}, fmt.Errorf("failed to read nonce: %w: %v", core.ErrStoreUnavailable, err)
	}
	return s.decode(value, raw)
}

// Consume atomically removes a live nonce
func (s *RedisNonceStore) Consume(ctx context.Context, value string) error {
	defer observe(s.duration, "nonce_consume", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.GetDel(ctx, s.prefix+value).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return core.ErrNonceInvalid
		}
		return fmt.Errorf("failed to consume nonce: %w: %v", core.ErrStoreUnavailable, err)
	}
	_, err = s.decode(value, raw)
	return err
}

// decode rebuilds a nonce from its stored expiry and re-checks it
// against the local clock in case the key outlived its TTL.
func (s *RedisNonceStore) decode(value, raw string) (core.Nonce, error) {
	expiresAt, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return core.Nonce{}, core.ErrNonceInvalid
	}
	nonce := core.Nonce{
		Value:     value,
		ExpiresAt: time.Unix(0, expiresAt),
	}
	nonce.IssuedAt = nonce.ExpiresAt.Add(-s.ttl)
	if nonce.Expired(s.clock()) {
		return core.Nonce{}, core.ErrNonceInvalid
	}
	return nonce, nil
}

// RedisSessionStore keeps sessions as JSON values that expire with the session
type RedisSessionStore struct {
	client   *redis.Client
	clock    Clock
	timeout  time.Duration
	prefix   string
	duration *prometheus.HistogramVec
}

type redisSession struct {
	Address   string    `json:"address"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewRedisSessionStore creates a Redis session store
func NewRedisSessionStore(client *redis.Client, opts ...Option) *RedisSessionStore {
	o := buildOptions("siwe:session:", opts)
	return &RedisSessionStore{
		client:   client,
		clock:    o.clock,
		timeout:  o.timeout,
		prefix:   o.prefix,
		duration: o.duration,
	}
}

// Create stores session until its expiry
func (s *RedisSessionStore) Create(ctx context.Context, session *core.Session) error {
	defer observe(s.duration, "session_create", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, ttl, err := s.encode(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.prefix+session.ID, payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

// Get returns a live session
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*core.Session, error) {
	defer observe(s.duration, "session_get", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.client.Get(ctx, s.prefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, core.ErrNotAuthenticated
		}
		return nil, fmt.Errorf("failed to read session: %w: %v", core.ErrStoreUnavailable, err)
	}

	var stored redisSession
	if err := json.Unmarshal(raw, &stored); err != nil {
		return nil, core.ErrNotAuthenticated
	}
	session := &core.Session{
		ID:        id,
		Address:   stored.Address,
		IssuedAt:  stored.IssuedAt,
		ExpiresAt: stored.ExpiresAt,
	}
	if session.Expired(s.clock()) {
		return nil, core.ErrNotAuthenticated
	}
	return session, nil
}

// Touch rewrites a session that still exists with its new expiry
func (s *RedisSessionStore) Touch(ctx context.Context, id string, session *core.Session) error {
	defer observe(s.duration, "session_touch", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	payload, ttl, err := s.encode(session)
	if err != nil {
		return err
	}
	ok, err := s.client.SetXX(ctx, s.prefix+id, payload, ttl).Result()
	if err != nil {
		return fmt.Errorf("failed to touch session: %w: %v", core.ErrStoreUnavailable, err)
	}
	if !ok {
		return core.ErrNotAuthenticated
	}
	return nil
}

// Delete removes the session; missing keys are not an error
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	defer observe(s.duration, "session_delete", time.Now())
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.prefix+id).Err(); err != nil {
		return fmt.Errorf("failed to delete session: %w: %v", core.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *RedisSessionStore) encode(session *core.Session) ([]byte, time.Duration, error) {
	ttl := session.ExpiresAt.Sub(s.clock())
	if ttl <= 0 {
		return nil, 0, core.ErrNotAuthenticated
	}
	payload, err := json.Marshal(redisSession{
		Address:   session.Address,
		IssuedAt:  session.IssuedAt,
		ExpiresAt: session.ExpiresAt,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to encode session: %w", err)
	}
	return payload, ttl, nil
}
