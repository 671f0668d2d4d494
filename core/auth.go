package core

import (
	"strings"
	"time"
)

// Nonce is a single-use challenge value handed to a client before signing
type Nonce struct {
	Value     string    // Random hex token
	IssuedAt  time.Time // When the nonce was created
	ExpiresAt time.Time // After this instant the nonce can no longer be consumed
	Consumed  bool      // One-way flag, set by a successful consume
}

// Expired reports whether the nonce is past its expiry at now
func (n Nonce) Expired(now time.Time) bool {
	return !now.Before(n.ExpiresAt)
}

// User represents an account that has completed sign-in at least once
type User struct {
	ID          string    // Unique user identifier
	Address     string    // Lower-cased Ethereum address
	DisplayName *string   // Optional display name
	CreatedAt   time.Time // First successful sign-in
}

// Session represents an authenticated user session
type Session struct {
	ID        string    // Opaque, unguessable session identifier
	Address   string    // Ethereum address of the user
	IssuedAt  time.Time // When the session was created
	ExpiresAt time.Time // When the session stops resolving
}

// Expired reports whether the session is past its expiry at now
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// SignInResult is returned to the caller of a successful verify
type SignInResult struct {
	Address string
	IsNew   bool
	Session *Session
	Token   string // credential naming Session
}

// NormalizeAddress returns the canonical (lower-case) form of an address
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// SameAddress compares two addresses case-insensitively
func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
