// Package hasher provides API key and admin token hashing implementations.
package hasher

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/xbrlgate/ports"
)

// ErrEmptyPepper is returned when no server secret is configured.
var ErrEmptyPepper = errors.New("key pepper is empty")

// HMAC hashes API keys with HMAC-SHA256 keyed by a server-side pepper.
// Output is lowercase hex, the encoding stored in the key_hash column.
type HMAC struct {
	pepper []byte
}

// NewHMAC creates a key hasher.
// A pepper of the form "base64:<data>" is decoded first.
func NewHMAC(pepper string) (*HMAC, error) {
	secret, err := ParsePepper(pepper)
	if err != nil {
		return nil, err
	}
	return &HMAC{pepper: secret}, nil
}

// Hash returns the hex HMAC of plaintext.
func (h *HMAC) Hash(plaintext string) string {
	mac := hmac.New(sha256.New, h.pepper)
	mac.Write([]byte(plaintext))
	return hex.EncodeToString(mac.Sum(nil))
}

// ParsePepper returns the raw pepper bytes.
func ParsePepper(pepper string) ([]byte, error) {
	if pepper == "" {
		return nil, ErrEmptyPepper
	}
	data, ok := strings.CutPrefix(pepper, "base64:")
	if !ok {
		return []byte(pepper), nil
	}
	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("decode base64 pepper: %w", err)
	}
	if len(raw) == 0 {
		return nil, ErrEmptyPepper
	}
	return raw, nil
}

// Ensure interface compliance.
var _ ports.KeyHasher = (*HMAC)(nil)
