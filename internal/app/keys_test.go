package app

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDecodeKeyHex(t *testing.T) {
	decoded, err := DecodeKey("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	require.Len(t, decoded, 16)
}

func TestDecodeKeyBase64(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}

	decoded, err := DecodeKey(base64.StdEncoding.EncodeToString(raw))
	require.NoError(t, err)
	require.Equal(t, raw, decoded)

	decoded, err = DecodeKey(base64.RawStdEncoding.EncodeToString(raw[:31]))
	require.NoError(t, err)
	require.Equal(t, raw[:31], decoded)
}

func TestDecodeKeyRawFallback(t *testing.T) {
	decoded, err := DecodeKey("not hex or base64!")
	require.NoError(t, err)
	require.Equal(t, []byte("not hex or base64!"), decoded)

	_, err = DecodeKey("   ")
	require.Error(t, err)
}

func TestTokenCodec(t *testing.T) {
	codec, err := TokensConfig{Secret: strings.Repeat("ab", 32), SecretBytes: 32}.TokenCodec()
	require.NoError(t, err)
	require.NotNil(t, codec)

	_, err = TokensConfig{Secret: "0011223344"}.TokenCodec()
	require.ErrorContains(t, err, "at least 16 bytes")

	_, err = TokensConfig{}.TokenCodec()
	require.Error(t, err)
}
