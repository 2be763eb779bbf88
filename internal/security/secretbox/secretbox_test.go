package secretbox

import (
	"encoding/base64"
	"errors"
	"strings"
	"testing"
)

func testKey(seed byte) []byte {
	k := make([]byte, 32)
	for i := range k {
		k[i] = seed + byte(i)
	}
	return k
}

func TestEncryptDecrypt_RoundTrip(t *testing.T) {
	t.Parallel()
	box, err := New(testKey(1))
	if err != nil {
		t.Fatalf("New err: %v", err)
	}

	msgs := []string{
		"",
		"gho_abcdef0123456789",
		"token with spaces ✓ and — unicode",
		strings.Repeat("x", 4096),
		string([]byte{0x00, 0x01, 0xff, 0xfe}),
	}
	for _, msg := range msgs {
		ct, err := box.Encrypt(msg)
		if err != nil {
			t.Fatalf("Encrypt err: %v", err)
		}
		pt, err := box.Decrypt(ct)
		if err != nil {
			t.Fatalf("Decrypt err: %v", err)
		}
		if pt != msg {
			t.Fatalf("plaintext mismatch: got %q want %q", pt, msg)
		}
	}
}

func TestDecrypt_WrongKey(t *testing.T) {
	t.Parallel()
	a, _ := New(testKey(1))
	b, _ := New(testKey(100))

	ct, err := a.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	pt, err := b.Decrypt(ct)
	if err == nil {
		t.Fatalf("expected error, got plaintext %q", pt)
	}
	if !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecrypt_DetectsTamper(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(7))

	ct, err := box.Encrypt("top secret")
	if err != nil {
		t.Fatalf("Encrypt err: %v", err)
	}
	parts := strings.Split(ct, "|")
	if len(parts) != 2 {
		t.Fatalf("unexpected ct format")
	}
	bs, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		t.Fatal(err)
	}
	bs[0] ^= 0x01 // flip
	corrupted := parts[0] + "|" + base64.StdEncoding.EncodeToString(bs)

	if _, err := box.Decrypt(corrupted); !errors.Is(err, ErrDecryptFailed) {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestDecrypt_Garbage(t *testing.T) {
	t.Parallel()
	box, _ := New(testKey(9))

	for _, ct := range []string{"", "no-separator", "a|b|c", "!!!|???", "YQ==|"} {
		if _, err := box.Decrypt(ct); !errors.Is(err, ErrDecryptFailed) {
			t.Fatalf("input %q: expected ErrDecryptFailed, got %v", ct, err)
		}
	}
}

func TestNew_RejectsBadKeyLength(t *testing.T) {
	t.Parallel()
	if _, err := New(make([]byte, 16)); err == nil {
		t.Fatalf("expected error for short key")
	}
	if _, err := New(nil); err == nil {
		t.Fatalf("expected error for nil key")
	}
}
