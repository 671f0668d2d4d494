// Package eth verifies EIP-191 personal-message signatures and provides the
// signing capability used by wallets and tests.
package eth

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/layer-3/siweauth/core"
)

// SignatureLength is R || S || V
const SignatureLength = crypto.SignatureLength

// DecodeSignature decodes a hex signature, with or without the 0x prefix
func DecodeSignature(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	sig, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", core.ErrSignatureInvalid)
	}
	if len(sig) != SignatureLength {
		return nil, fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrSignatureInvalid)
	}
	return sig, nil
}

// RecoverSigner returns the lower-cased address that produced signature
// over message using the "\x19Ethereum Signed Message:\n" prefix.
func RecoverSigner(message string, signature []byte) (string, error) {
	if len(signature) != SignatureLength {
		return "", fmt.Errorf("signature must be %d bytes: %w", SignatureLength, core.ErrSignatureInvalid)
	}

	// Wallets emit V as 27/28, crypto expects 0/1
	sig := make([]byte, SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}
	if sig[crypto.RecoveryIDOffset] > 1 {
		return "", fmt.Errorf("bad recovery id: %w", core.ErrSignatureInvalid)
	}

	pub, err := crypto.SigToPub(accounts.TextHash([]byte(message)), sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", core.ErrSignatureInvalid)
	}
	return core.NormalizeAddress(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Verify recovers the signer of message and compares it to claimed.
// It never trusts claimed on its own.
func Verify(message string, signature []byte, claimed string) error {
	signer, err := RecoverSigner(message, signature)
	if err != nil {
		return err
	}
	if !core.SameAddress(signer, claimed) {
		return fmt.Errorf("%w: signed by %s", core.ErrAddressMismatch, signer)
	}
	return nil
}
