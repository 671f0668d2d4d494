package siwe

import (
	"strings"
	"testing"
	"time"

	"github.com/layer-3/siweauth/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = "0x" + strings.Repeat("A", 36) + "1111"

func testFields() Fields {
	return Fields{
		Domain:  "localhost",
		Address: testAddress,
		URI:     "http://localhost:8000",
		ChainID: 1,
		Nonce:   "abc123",
	}
}

func TestRender(t *testing.T) {
	t.Run("matches the template byte for byte", func(t *testing.T) {
		want := "0x" + strings.Repeat("a", 36) + "1111 wants to sign in to localhost.\n\n" +
			"URI: http://localhost:8000\n" +
			"Version: 1\n" +
			"Chain ID: 1\n" +
			"Nonce: abc123"
		assert.Equal(t, want, Render(testFields()))
	})

	t.Run("is deterministic", func(t *testing.T) {
		f := testFields()
		f.IssuedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		assert.Equal(t, Render(f), Render(f))
	})

	t.Run("lower-cases the address", func(t *testing.T) {
		msg := Render(testFields())
		assert.True(t, strings.HasPrefix(msg, strings.ToLower(testAddress)+" "))
		assert.NotContains(t, msg, "AAAA")
	})

	t.Run("renders statement and issued at when set", func(t *testing.T) {
		f := testFields()
		f.Statement = "Sign in to Eco DMS."
		f.IssuedAt = time.Date(2024, 5, 1, 14, 0, 0, 0, time.FixedZone("CEST", 2*3600))

		msg := Render(f)
		assert.Contains(t, msg, "localhost.\n\nSign in to Eco DMS.\n\nURI: ")
		assert.True(t, strings.HasSuffix(msg, "\nNonce: abc123\nIssued At: 2024-05-01T12:00:00Z"))
	})
}

func TestParse(t *testing.T) {
	t.Run("round trips rendered messages", func(t *testing.T) {
		plain := testFields()
		full := testFields()
		full.Statement = "Sign in to Eco DMS."
		full.IssuedAt = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

		for _, f := range []Fields{plain, full} {
			msg := Render(f)
			got, err := Parse(msg)
			require.NoError(t, err)
			assert.Equal(t, core.NormalizeAddress(f.Address), got.Address)
			assert.Equal(t, f.Domain, got.Domain)
			assert.Equal(t, f.Statement, got.Statement)
			assert.Equal(t, f.URI, got.URI)
			assert.Equal(t, f.ChainID, got.ChainID)
			assert.Equal(t, f.Nonce, got.Nonce)
			assert.True(t, f.IssuedAt.Equal(got.IssuedAt))
			assert.Equal(t, msg, Render(got))
		}
	})

	valid := Render(testFields())
	cases := []struct {
		name    string
		message string
	}{
		{"empty", ""},
		{"upper-case address", strings.Replace(valid, strings.ToLower(testAddress), testAddress, 1)},
		{"short address", strings.Replace(valid, "1111 wants", "11 wants", 1)},
		{"missing header period", strings.Replace(valid, "localhost.\n", "localhost\n", 1)},
		{"missing blank line", strings.Replace(valid, ".\n\n", ".\n", 1)},
		{"wrong version", strings.Replace(valid, "Version: 1", "Version: 2", 1)},
		{"zero chain id", strings.Replace(valid, "Chain ID: 1", "Chain ID: 0", 1)},
		{"non canonical chain id", strings.Replace(valid, "Chain ID: 1", "Chain ID: 01", 1)},
		{"reordered fields", strings.Replace(strings.Replace(valid, "Version: 1\n", "", 1), "Nonce: abc123", "Nonce: abc123\nVersion: 1", 1)},
		{"empty nonce", strings.Replace(valid, "Nonce: abc123", "Nonce: ", 1)},
		{"trailing newline", valid + "\n"},
		{"trailing garbage", valid + "\nResources: x"},
		{"bad issued at", valid + "\nIssued At: yesterday"},
		{"non utc issued at", valid + "\nIssued At: 2024-05-01T14:00:00+02:00"},
		{"crlf line endings", strings.ReplaceAll(valid, "\n", "\r\n")},
	}
	for _, tc := range cases {
		t.Run("rejects "+tc.name, func(t *testing.T) {
			_, err := Parse(tc.message)
			require.ErrorIs(t, err, core.ErrMessageMalformed)
		})
	}
}
