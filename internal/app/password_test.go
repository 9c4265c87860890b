package app

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testCipherKey = "CCR!@#$%"

func TestEncryptPasswordRoundTrip(t *testing.T) {
	for _, password := range []string{"a", "secret", "12345678", "a-much-longer-password-with-symbols!@#", "密码测试"} {
		enc, err := EncryptPassword(password, testCipherKey)
		if err != nil {
			t.Fatalf("EncryptPassword(%q): %v", password, err)
		}
		dec, err := DecryptPassword(enc, testCipherKey)
		if err != nil {
			t.Fatalf("DecryptPassword(%q): %v", password, err)
		}
		if dec != password {
			t.Fatalf("round trip of %q returned %q", password, dec)
		}
	}
}

func TestEncryptPasswordOutputShape(t *testing.T) {
	enc, err := EncryptPassword("secret", testCipherKey)
	if err != nil {
		t.Fatalf("EncryptPassword: %v", err)
	}
	raw, err := base64.StdEncoding.DecodeString(enc)
	if err != nil {
		t.Fatalf("output is not valid base64: %v", err)
	}
	if len(raw) == 0 || len(raw)%8 != 0 {
		t.Fatalf("ciphertext length %d is not a positive multiple of the DES block size", len(raw))
	}
}

func TestEncryptPasswordDeterministic(t *testing.T) {
	a, err := EncryptPassword("secret", testCipherKey)
	if err != nil {
		t.Fatalf("EncryptPassword: %v", err)
	}
	b, err := EncryptPassword("secret", testCipherKey)
	if err != nil {
		t.Fatalf("EncryptPassword: %v", err)
	}
	if a != b {
		t.Fatalf("same input should produce the same ciphertext, got %q and %q", a, b)
	}
}

func TestEncryptPasswordBadKey(t *testing.T) {
	if _, err := EncryptPassword("secret", "short"); err == nil {
		t.Fatalf("expected error for a non-8-byte key")
	}
}

func TestDecryptPasswordRejectsGarbage(t *testing.T) {
	if _, err := DecryptPassword("not-base64!!!", testCipherKey); err == nil {
		t.Fatalf("expected error for invalid base64")
	}
	// Valid base64 but not block aligned.
	odd := base64.StdEncoding.EncodeToString([]byte("abc"))
	if _, err := DecryptPassword(odd, testCipherKey); err == nil || !strings.Contains(err.Error(), "block aligned") {
		t.Fatalf("expected block alignment error, got %v", err)
	}
}
