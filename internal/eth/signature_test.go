package eth

import (
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/layer-3/siweauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known hardhat account #0
const (
	testKeyHex  = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	testAddress = "0xf39fd6e51aad88f6f4ce6ab8827279cfffb92266"
)

func TestKeySigner(t *testing.T) {
	signer, err := KeySignerFromHex(testKeyHex)
	require.NoError(t, err)
	assert.Equal(t, testAddress, strings.ToLower(signer.Address().Hex()))

	a, err := signer.SignMessage("hello")
	require.NoError(t, err)
	b, err := signer.SignMessage("hello")
	require.NoError(t, err)
	assert.Equal(t, a, b, "signatures are deterministic")
	assert.Len(t, a, SignatureLength)
	assert.Contains(t, []byte{27, 28}, a[64])
}

func TestVerify(t *testing.T) {
	signer, err := KeySignerFromHex(testKeyHex)
	require.NoError(t, err)
	other, err := GenerateKeySigner()
	require.NoError(t, err)

	message := testAddress + " wants to sign in to localhost.\n\nURI: http://localhost:8000\nVersion: 1\nChain ID: 1\nNonce: abc123"
	sig, err := signer.SignMessage(message)
	require.NoError(t, err)

	t.Run("recovers the signer", func(t *testing.T) {
		got, err := RecoverSigner(message, sig)
		require.NoError(t, err)
		assert.Equal(t, testAddress, got)
	})

	t.Run("accepts the signer address in any case", func(t *testing.T) {
		require.NoError(t, Verify(message, sig, testAddress))
		require.NoError(t, Verify(message, sig, signer.Address().Hex()))
	})

	t.Run("accepts V as 0 or 1", func(t *testing.T) {
		raw := append([]byte(nil), sig...)
		raw[64] -= 27
		require.NoError(t, Verify(message, raw, testAddress))
		assert.Contains(t, []byte{27, 28}, sig[64], "input is not mutated")
	})

	t.Run("rejects a different claimed address", func(t *testing.T) {
		err := Verify(message, sig, other.Address().Hex())
		require.ErrorIs(t, err, core.ErrAddressMismatch)
	})

	t.Run("rejects a tampered message", func(t *testing.T) {
		tampered := strings.Replace(message, "abc123", "abc124", 1)
		err := Verify(tampered, sig, testAddress)
		require.Error(t, err)
		assert.NotErrorIs(t, err, core.ErrSignatureInvalid)
		require.ErrorIs(t, err, core.ErrAddressMismatch)
	})

	t.Run("rejects malformed signatures", func(t *testing.T) {
		require.ErrorIs(t, Verify(message, sig[:64], testAddress), core.ErrSignatureInvalid)
		require.ErrorIs(t, Verify(message, nil, testAddress), core.ErrSignatureInvalid)

		bad := append([]byte(nil), sig...)
		bad[64] = 5
		require.ErrorIs(t, Verify(message, bad, testAddress), core.ErrSignatureInvalid)
	})
}

func TestDecodeSignature(t *testing.T) {
	signer, err := GenerateKeySigner()
	require.NoError(t, err)
	sig, err := signer.SignMessage("hello")
	require.NoError(t, err)
	encoded := hexutil.Encode(sig)

	got, err := DecodeSignature(encoded)
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	got, err = DecodeSignature(strings.TrimPrefix(encoded, "0x"))
	require.NoError(t, err)
	assert.Equal(t, sig, got)

	for _, bad := range []string{"", "0x", "0xzz", encoded[:len(encoded)-2], encoded + "00"} {
		_, err := DecodeSignature(bad)
		require.ErrorIs(t, err, core.ErrSignatureInvalid, bad)
	}
}
