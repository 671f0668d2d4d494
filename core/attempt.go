package core

import "fmt"

// AttemptState is the position of a single sign-in attempt in the protocol
type AttemptState string

const (
	StateAwaitingNonce     AttemptState = "awaiting_nonce"
	StateAwaitingSignature AttemptState = "awaiting_signature"
	StateVerified          AttemptState = "verified"
	StateFailed            AttemptState = "failed"
)

// Terminal reports whether no further transition is possible
func (s AttemptState) Terminal() bool {
	return s == StateVerified || s == StateFailed
}

// Attempt tracks one nonce → prepare → verify run. It is not shared
// between goroutines.
type Attempt struct {
	Nonce  string
	State  AttemptState
	Reason error // set only when State is StateFailed
}

// NewAttempt starts an attempt that has not yet received a nonce
func NewAttempt() *Attempt {
	return &Attempt{State: StateAwaitingNonce}
}

// NonceIssued moves the attempt to AwaitingSignature
func (a *Attempt) NonceIssued(nonce string) error {
	if a.State != StateAwaitingNonce {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, StateAwaitingSignature)
	}
	a.Nonce = nonce
	a.State = StateAwaitingSignature
	return nil
}

// Verified marks the attempt as successfully completed
func (a *Attempt) Verified() error {
	if a.State != StateAwaitingSignature {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, StateVerified)
	}
	a.State = StateVerified
	return nil
}

// Fail marks the attempt as failed with reason. Failing a terminal
// attempt is an error.
func (a *Attempt) Fail(reason error) error {
	if a.State.Terminal() {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, a.State, StateFailed)
	}
	a.State = StateFailed
	a.Reason = reason
	return nil
}
