package siweauth

import (
	"fmt"

	"github.com/layer-3/siweauth/core"
)

// APIError is a non-2xx answer from the server. It unwraps to the core
// sentinel named by Code, so callers can use errors.Is.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("siweauth: %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return sentinels[e.Code]
}

var sentinels = map[string]error{
	"nonce_invalid":     core.ErrNonceInvalid,
	"message_malformed": core.ErrMessageMalformed,
	"invalid_address":   core.ErrInvalidAddress,
	"chain_not_allowed": core.ErrChainNotAllowed,
	"signature_invalid": core.ErrSignatureInvalid,
	"address_mismatch":  core.ErrAddressMismatch,
	"not_registered":    core.ErrNotRegistered,
	"not_authenticated": core.ErrNotAuthenticated,
	"store_unavailable": core.ErrStoreUnavailable,
}
