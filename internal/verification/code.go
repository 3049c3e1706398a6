package verification

import (
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// CodeLength is the number of characters in a verification code.
const CodeLength = 6

// A-Z and 2-7, unpadded.
var codeEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// Coder derives verification codes as a keyed digest of the pickup facts.
// The same inputs always give the same code, so a printed receipt can be
// re-checked offline by anyone holding the key.
type Coder struct {
	key []byte
}

// NewCoder requires a key of at most 64 bytes.
func NewCoder(secret string) (*Coder, error) {
	if len(secret) > blake2b.Size {
		return nil, fmt.Errorf("verification secret longer than %d bytes", blake2b.Size)
	}
	return &Coder{key: []byte(secret)}, nil
}

// Code digests the protocol, evidence id and pickup time.
func (c *Coder) Code(protocol, evidenceID string, pickedUpUnix int64) (string, error) {
	h, err := blake2b.New256(c.key)
	if err != nil {
		return "", fmt.Errorf("init digest: %w", err)
	}
	fmt.Fprintf(h, "%s|%s|%d", protocol, evidenceID, pickedUpUnix)
	sum := h.Sum(nil)
	return codeEncoding.EncodeToString(sum)[:CodeLength], nil
}

// Matches compares a typed code case-insensitively.
func (c *Coder) Matches(code, protocol, evidenceID string, pickedUpUnix int64) bool {
	want, err := c.Code(protocol, evidenceID, pickedUpUnix)
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(code), want)
}
