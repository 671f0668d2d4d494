package tokenizer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims carry the session id as jti and the address as sub
type SessionClaims struct {
	jwt.RegisteredClaims
}
