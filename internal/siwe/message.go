// Package siwe renders and parses the sign-in message a wallet signs.
//
// The rendered text is the protocol contract: the client signs exactly the
// string Render returns and the server re-derives it from the parsed fields
// when verifying. Any input whose re-rendering is not byte-identical is
// rejected by Parse.
package siwe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/layer-3/siweauth/core"
)

// Version is the only message version this package speaks
const Version = "1"

const (
	headerSuffix = "."
	headerInfix  = " wants to sign in to "

	labelURI      = "URI: "
	labelVersion  = "Version: "
	labelChainID  = "Chain ID: "
	labelNonce    = "Nonce: "
	labelIssuedAt = "Issued At: "
)

// Fields are the structured inputs of a sign-in message
type Fields struct {
	Domain    string
	Address   string
	Statement string // optional, rendered as its own paragraph
	URI       string
	ChainID   uint64
	Nonce     string
	IssuedAt  time.Time // optional, zero means the line is omitted
}

// Render produces the canonical message for f. The address is lower-cased
// and the issued-at time is rendered in UTC, second precision.
func Render(f Fields) string {
	var b strings.Builder
	b.WriteString(core.NormalizeAddress(f.Address))
	b.WriteString(headerInfix)
	b.WriteString(f.Domain)
	b.WriteString(headerSuffix)
	b.WriteString("\n\n")
	if f.Statement != "" {
		b.WriteString(f.Statement)
		b.WriteString("\n\n")
	}
	b.WriteString(labelURI + f.URI + "\n")
	b.WriteString(labelVersion + Version + "\n")
	b.WriteString(labelChainID + strconv.FormatUint(f.ChainID, 10) + "\n")
	b.WriteString(labelNonce + f.Nonce)
	if !f.IssuedAt.IsZero() {
		b.WriteString("\n" + labelIssuedAt + f.IssuedAt.UTC().Format(time.RFC3339))
	}
	return b.String()
}

// Parse splits a message back into its fields. It fails with
// core.ErrMessageMalformed unless Render(fields) == message.
func Parse(message string) (Fields, error) {
	lines := strings.Split(message, "\n")
	if len(lines) < 6 {
		return Fields{}, malformed("too few lines")
	}

	var f Fields
	header := lines[0]
	i := strings.Index(header, headerInfix)
	if i <= 0 || !strings.HasSuffix(header, headerSuffix) {
		return Fields{}, malformed("bad header")
	}
	f.Address = header[:i]
	f.Domain = strings.TrimSuffix(header[i+len(headerInfix):], headerSuffix)
	if f.Domain == "" {
		return Fields{}, malformed("empty domain")
	}
	if !common.IsHexAddress(f.Address) || !strings.HasPrefix(f.Address, "0x") {
		return Fields{}, malformed("bad address")
	}
	if lines[1] != "" {
		return Fields{}, malformed("missing blank line after header")
	}

	rest := lines[2:]
	if !strings.HasPrefix(rest[0], labelURI) {
		if len(rest) < 3 || rest[1] != "" {
			return Fields{}, malformed("bad statement")
		}
		f.Statement = rest[0]
		rest = rest[2:]
	}

	values, err := labelled(rest, labelURI, labelVersion, labelChainID, labelNonce)
	if err != nil {
		return Fields{}, err
	}
	f.URI = values[0]
	if values[1] != Version {
		return Fields{}, malformed("unsupported version")
	}
	chainID, err := strconv.ParseUint(values[2], 10, 64)
	if err != nil || chainID == 0 {
		return Fields{}, malformed("bad chain id")
	}
	f.ChainID = chainID
	f.Nonce = values[3]
	if f.Nonce == "" {
		return Fields{}, malformed("empty nonce")
	}

	switch tail := rest[4:]; len(tail) {
	case 0:
	case 1:
		if !strings.HasPrefix(tail[0], labelIssuedAt) {
			return Fields{}, malformed("unexpected trailing line")
		}
		ts, err := time.Parse(time.RFC3339, strings.TrimPrefix(tail[0], labelIssuedAt))
		if err != nil {
			return Fields{}, malformed("bad issued at")
		}
		f.IssuedAt = ts
	default:
		return Fields{}, malformed("unexpected trailing lines")
	}

	if Render(f) != message {
		return Fields{}, malformed("not in canonical form")
	}
	return f, nil
}

func labelled(lines []string, labels ...string) ([]string, error) {
	if len(lines) < len(labels) {
		return nil, malformed("missing fields")
	}
	values := make([]string, len(labels))
	for i, label := range labels {
		if !strings.HasPrefix(lines[i], label) {
			return nil, malformed(fmt.Sprintf("expected %q", strings.TrimSuffix(label, ": ")))
		}
		values[i] = strings.TrimPrefix(lines[i], label)
	}
	return values, nil
}

func malformed(reason string) error {
	return fmt.Errorf("%w: %s", core.ErrMessageMalformed, reason)
}
