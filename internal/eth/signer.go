package eth

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is anything able to personal_sign an arbitrary string: a wallet,
// a hardware key or a test stub.
type Signer interface {
	Address() common.Address
	SignMessage(message string) ([]byte, error)
}

// KeySigner signs with an in-process private key. Signatures are
// deterministic (RFC 6979), which makes it usable as a test double.
type KeySigner struct {
	key *ecdsa.PrivateKey
}

// NewKeySigner wraps key
func NewKeySigner(key *ecdsa.PrivateKey) *KeySigner {
	return &KeySigner{key: key}
}

// KeySignerFromHex loads a secp256k1 key from hex
func KeySignerFromHex(hexKey string) (*KeySigner, error) {
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load key: %w", err)
	}
	return NewKeySigner(key), nil
}

// GenerateKeySigner creates a signer with a fresh random key
func GenerateKeySigner() (*KeySigner, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}
	return NewKeySigner(key), nil
}

// Address returns the account controlled by the key
func (s *KeySigner) Address() common.Address {
	return crypto.PubkeyToAddress(s.key.PublicKey)
}

// SignMessage returns a 65-byte signature with V in {27, 28}, as wallets do
func (s *KeySigner) SignMessage(message string) ([]byte, error) {
	sig, err := crypto.Sign(accounts.TextHash([]byte(message)), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}
