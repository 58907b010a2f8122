package crypto

import (
	"errors"
	"testing"
)

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("secret")
	if err != nil {
		t.Fatalf("hash error: %v", err)
	}

	if !VerifyPassword(hash, "secret") {
		t.Fatal("expected password verification to succeed")
	}

	if VerifyPassword(hash, "incorrect") {
		t.Fatal("expected password verification to fail")
	}
}

func TestGenerateToken(t *testing.T) {
	token, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}

	// 32 bytes encode to 43 unpadded base64url characters.
	if len(token) != 43 {
		t.Fatalf("expected 43 characters, got %d", len(token))
	}

	other, err := GenerateToken(32)
	if err != nil {
		t.Fatalf("token error: %v", err)
	}
	if token == other {
		t.Fatal("expected distinct tokens")
	}
}

func TestGenerateTokenRejectsShortLength(t *testing.T) {
	if _, err := GenerateToken(8); !errors.Is(err, ErrTokenTooShort) {
		t.Fatalf("expected ErrTokenTooShort, got %v", err)
	}
}

func TestHMACSHA256IsDeterministicAndKeyed(t *testing.T) {
	a := HMACSHA256("value", []byte("key-one"))
	b := HMACSHA256("value", []byte("key-one"))
	c := HMACSHA256("value", []byte("key-two"))

	if a != b {
		t.Fatal("expected identical digests for identical input")
	}
	if a == c {
		t.Fatal("expected digests to differ across keys")
	}
}

func TestConstantTimeEqual(t *testing.T) {
	if !ConstantTimeEqual("abc", "abc") {
		t.Fatal("expected equal strings to match")
	}
	if ConstantTimeEqual("abc", "abd") {
		t.Fatal("expected different strings to mismatch")
	}
	if ConstantTimeEqual("abc", "abcd") {
		t.Fatal("expected length mismatch to fail")
	}
}
