package ports

import (
	"context"

	"github.com/layer-3/siweauth/core"
)

// NonceStore issues single-use nonces
type NonceStore interface {
	// Issue records and returns a fresh nonce
	Issue(ctx context.Context) (core.Nonce, error)
	// Lookup returns the nonce if it is live (known, unexpired, unconsumed)
	Lookup(ctx context.Context, value string) (core.Nonce, error)
	// Consume atomically spends a live nonce. At most one call per nonce
	// succeeds; the rest fail with core.ErrNonceInvalid.
	Consume(ctx context.Context, value string) error
}

// SessionStore holds issued sessions
type SessionStore interface {
	Create(ctx context.Context, session *core.Session) error
	// Get returns core.ErrNotAuthenticated for unknown or expired sessions
	Get(ctx context.Context, id string) (*core.Session, error)
	// Touch moves the expiry of a live session (sliding windows)
	Touch(ctx context.Context, id string, session *core.Session) error
	// Delete is idempotent
	Delete(ctx context.Context, id string) error
}

// UserStore persists users keyed by address
type UserStore interface {
	// FindOrCreate returns the user for address, creating it when absent.
	// created is true only for the call that inserted the row.
	FindOrCreate(ctx context.Context, address string) (user *core.User, created bool, err error)
	// FindByAddress returns core.ErrNotAuthenticated when no user exists
	FindByAddress(ctx context.Context, address string) (*core.User, error)
}
