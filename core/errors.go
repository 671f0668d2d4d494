package core

import "errors"

var (
	ErrNonceInvalid      = errors.New("nonce is unknown, expired or already used")
	ErrMessageMalformed  = errors.New("message does not match the sign-in template")
	ErrSignatureInvalid  = errors.New("invalid signature")
	ErrAddressMismatch   = errors.New("recovered signer does not match address")
	ErrNotAuthenticated  = errors.New("not authenticated")
	ErrStoreUnavailable  = errors.New("store unavailable")
	ErrInvalidAddress    = errors.New("invalid ethereum address")
	ErrChainNotAllowed   = errors.New("chain id not allowed")
	ErrNotRegistered     = errors.New("account has no on-chain profile")
	ErrInvalidTransition = errors.New("invalid attempt state transition")
)

// Code returns a stable machine-readable name for the error kind
func Code(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNonceInvalid):
		return "nonce_invalid"
	case errors.Is(err, ErrMessageMalformed):
		return "message_malformed"
	case errors.Is(err, ErrSignatureInvalid):
		return "signature_invalid"
	case errors.Is(err, ErrAddressMismatch):
		return "address_mismatch"
	case errors.Is(err, ErrNotAuthenticated):
		return "not_authenticated"
	case errors.Is(err, ErrStoreUnavailable):
		return "store_unavailable"
	case errors.Is(err, ErrInvalidAddress):
		return "invalid_address"
	case errors.Is(err, ErrChainNotAllowed):
		return "chain_not_allowed"
	case errors.Is(err, ErrNotRegistered):
		return "not_registered"
	default:
		return "internal"
	}
}
