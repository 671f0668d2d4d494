package ports

import "github.com/layer-3/siweauth/core"

// Tokenizer converts between sessions and the credential handed to clients
type Tokenizer interface {
	SessionToToken(session *core.Session) (string, error)
	// TokenToSession verifies the credential and returns the session it
	// names. Only the id, address and timestamps are populated.
	TokenToSession(token string) (*core.Session, error)
}
