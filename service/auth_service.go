package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/siweauth/core"
	"github.com/layer-3/siweauth/internal/eth"
	"github.com/layer-3/siweauth/internal/platform/metrics"
	"github.com/layer-3/siweauth/internal/siwe"
	"github.com/layer-3/siweauth/ports"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// MessageConfig holds the server-side fields of the sign-in message
type MessageConfig struct {
	Domain          string
	URI             string
	Statement       string
	IncludeIssuedAt bool
	ChainIDs        []uint64 // empty allows any chain
}

// AuthService runs the nonce → prepare → verify protocol
type AuthService struct {
	nonces   ports.NonceStore
	sessions *SessionManager
	eventPub ports.EventPublisher

	message  MessageConfig
	chainIDs map[uint64]struct{}

	logger  *zap.Logger
	metrics *metrics.Metrics
	clock   func() time.Time
}

// AuthOption configures an AuthService
type AuthOption func(*AuthService)

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) AuthOption {
	return func(s *AuthService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) AuthOption {
	return func(s *AuthService) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock sets the clock used for Issued At
func WithClock(clock func() time.Time) AuthOption {
	return func(s *AuthService) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewAuthService creates a new authentication service
func NewAuthService(
	nonces ports.NonceStore,
	sessions *SessionManager,
	eventPub ports.EventPublisher,
	message MessageConfig,
	opts ...AuthOption,
) *AuthService {
	s := &AuthService{
		nonces:   nonces,
		sessions: sessions,
		eventPub: eventPub,
		message:  message,
		chainIDs: make(map[uint64]struct{}, len(message.ChainIDs)),
		logger:   zap.NewNop(),
		clock:    time.Now,
	}
	for _, id := range message.ChainIDs {
		s.chainIDs[id] = struct{}{}
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New(prometheus.NewRegistry())
	}
	return s
}

// Sessions exposes the session manager
func (s *AuthService) Sessions() *SessionManager {
	return s.sessions
}

// Nonce issues a fresh single-use nonce
func (s *AuthService) Nonce(ctx context.Context) (string, error) {
	nonce, err := s.nonces.Issue(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to issue nonce: %w", err)
	}
	s.metrics.NoncesIssued.Inc()
	return nonce.Value, nil
}

// Prepare renders the message the client must sign. The nonce has to be
// live but is not spent here.
func (s *AuthService) Prepare(ctx context.Context, address string, chainID uint64, nonce string) (string, error) {
	if !common.IsHexAddress(address) || len(address) != 2*common.AddressLength+2 {
		return "", core.ErrInvalidAddress
	}
	if err := s.checkChain(chainID); err != nil {
		return "", err
	}
	if _, err := s.nonces.Lookup(ctx, nonce); err != nil {
		return "", err
	}

	fields := siwe.Fields{
		Domain:    s.message.Domain,
		Address:   address,
		Statement: s.message.Statement,
		URI:       s.message.URI,
		ChainID:   chainID,
		Nonce:     nonce,
	}
	if s.message.IncludeIssuedAt {
		fields.IssuedAt = s.clock().UTC().Truncate(time.Second)
	}
	return siwe.Render(fields), nil
}

// Verify checks a signed message and opens a session for its signer
func (s *AuthService) Verify(ctx context.Context, message, signature string) (*core.SignInResult, error) {
	attempt := core.NewAttempt()
	result, err := s.verify(ctx, attempt, message, signature)
	s.metrics.ObserveVerify(outcome(err))
	if err != nil {
		s.logger.Info("sign-in failed",
			zap.String("state", string(attempt.State)),
			zap.String("reason", core.Code(err)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("sign-in verified",
		zap.String("address", result.Address),
		zap.Bool("is_new", result.IsNew),
	)
	if err := s.eventPub.PublishLogin(ctx, result.Address, result.Session.ID, result.IsNew); err != nil {
		s.logger.Warn("failed to publish login event", zap.Error(err))
	}
	return result, nil
}

// verify drives attempt through the protocol: parse, consume the nonce,
// check the signature, then issue the session. An attempt that already
// left AwaitingNonce is refused before any store is touched.
func (s *AuthService) verify(ctx context.Context, attempt *core.Attempt, message, signature string) (*core.SignInResult, error) {
	if attempt.State != core.StateAwaitingNonce {
		return nil, fmt.Errorf("%w: attempt is %s", core.ErrInvalidTransition, attempt.State)
	}

	fields, err := siwe.Parse(message)
	if err == nil {
		err = s.checkFields(fields)
	}
	if err != nil {
		return nil, s.fail(attempt, err)
	}
	if err := attempt.NonceIssued(fields.Nonce); err != nil {
		return nil, err
	}

	// Once consumed the nonce stays spent, whatever happens next
	if err := s.nonces.Consume(ctx, fields.Nonce); err != nil {
		return nil, s.fail(attempt, err)
	}

	sig, err := eth.DecodeSignature(signature)
	if err == nil {
		err = eth.Verify(message, sig, fields.Address)
	}
	if err != nil {
		return nil, s.fail(attempt, err)
	}

	issued, err := s.sessions.Issue(ctx, fields.Address)
	if err != nil {
		return nil, s.fail(attempt, err)
	}
	if err := attempt.Verified(); err != nil {
		return nil, err
	}
	if issued.IsNew {
		s.metrics.UsersCreated.Inc()
	}

	return &core.SignInResult{
		Address: issued.Session.Address,
		IsNew:   issued.IsNew,
		Session: issued.Session,
		Token:   issued.Token,
	}, nil
}

// fail records reason on attempt and returns it unchanged
func (s *AuthService) fail(attempt *core.Attempt, reason error) error {
	if err := attempt.Fail(reason); err != nil {
		s.logger.Error("failed to record sign-in failure",
			zap.String("state", string(attempt.State)),
			zap.Error(err),
		)
	}
	return reason
}

// Me returns the user behind a session credential
func (s *AuthService) Me(ctx context.Context, token string) (*core.User, error) {
	return s.sessions.Current(ctx, token)
}

// Logout revokes the session behind token. Calling it twice is fine.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	session, err := s.sessions.Revoke(ctx, token)
	if err != nil {
		return fmt.Errorf("failed to revoke session: %w", err)
	}
	if session == nil {
		return nil
	}

	s.metrics.SessionsRevoked.Inc()
	// The session is already gone from the store; the event only informs
	// other instances.
	if err := s.eventPub.PublishLogout(ctx, session.Address, session.ID); err != nil {
		s.logger.Warn("failed to publish logout event", zap.Error(err))
	}
	return nil
}

func (s *AuthService) checkFields(f siwe.Fields) error {
	if f.Domain != s.message.Domain {
		return fmt.Errorf("%w: domain %q", core.ErrMessageMalformed, f.Domain)
	}
	if f.URI != s.message.URI {
		return fmt.Errorf("%w: uri %q", core.ErrMessageMalformed, f.URI)
	}
	return s.checkChain(f.ChainID)
}

func (s *AuthService) checkChain(chainID uint64) error {
	if chainID == 0 {
		return core.ErrChainNotAllowed
	}
	if len(s.chainIDs) == 0 {
		return nil
	}
	if _, ok := s.chainIDs[chainID]; !ok {
		return core.ErrChainNotAllowed
	}
	return nil
}

func outcome(err error) string {
	if err == nil {
		return string(core.StateVerified)
	}
	return core.Code(err)
}
