package app

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/charlesng35/taskhub/internal/tokens"
)

const minServerKeyBytes = 16

// DecodeKey decodes a key from hex or base64 encoding to raw bytes.
// It tries hex first (since runtime defaults use hex), then base64 variants.
// If all decoding attempts fail, it treats the input as raw bytes.
func DecodeKey(value string) ([]byte, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil, fmt.Errorf("key value is empty")
	}

	if len(v)%2 == 0 {
		if decoded, err := hex.DecodeString(v); err == nil {
			return decoded, nil
		}
	}

	if decoded, err := base64.StdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}
	if decoded, err := base64.RawStdEncoding.DecodeString(v); err == nil {
		return decoded, nil
	}

	return []byte(v), nil
}

// TokenCodec builds the action-token codec from tokens.secret. The decoded
// key must carry at least 128 bits.
func (c TokensConfig) TokenCodec() (*tokens.Codec, error) {
	key, err := DecodeKey(c.Secret)
	if err != nil {
		return nil, fmt.Errorf("tokens.secret: %w", err)
	}
	if len(key) < minServerKeyBytes {
		return nil, fmt.Errorf("tokens.secret must decode to at least %d bytes (current: %d)", minServerKeyBytes, len(key))
	}
	return tokens.NewCodec(string(key), c.SecretBytes)
}
