package tokens

import (
	"errors"
	"strings"

	"github.com/charlesng35/taskhub/pkg/crypto"
)

const (
	// DefaultSecretBytes yields 256 bits of entropy per token.
	DefaultSecretBytes = 32
	minServerSecret    = 16
)

// ErrWeakServerSecret is returned when the HMAC key is missing or too short.
var ErrWeakServerSecret = errors.New("tokens: server secret must be at least 16 bytes")

// Codec generates raw token secrets and derives the keyed hash that is persisted
// in their place.
type Codec struct {
	key         []byte
	secretBytes int
}

// NewCodec builds a codec keyed by serverSecret. secretBytes below the
// 128-bit minimum are rejected; zero selects DefaultSecretBytes.
func NewCodec(serverSecret string, secretBytes int) (*Codec, error) {
	serverSecret = strings.TrimSpace(serverSecret)
	if len(serverSecret) < minServerSecret {
		return nil, ErrWeakServerSecret
	}
	if secretBytes == 0 {
		secretBytes = DefaultSecretBytes
	}
	if secretBytes < crypto.MinTokenBytes {
		return nil, crypto.ErrTokenTooShort
	}
	return &Codec{key: []byte(serverSecret), secretBytes: secretBytes}, nil
}

// GenerateSecret returns a fresh URL-safe random secret.
func (c *Codec) GenerateSecret() (string, error) {
	return crypto.GenerateToken(c.secretBytes)
}

// DeriveHash computes the URL-safe HMAC-SHA256 of raw under the server secret.
func (c *Codec) DeriveHash(raw string) string {
	return crypto.HMACSHA256(raw, c.key)
}

// Verify compares a stored hash against a candidate in constant time.
func (c *Codec) Verify(storedHash, candidateHash string) bool {
	return crypto.ConstantTimeEqual(storedHash, candidateHash)
}
