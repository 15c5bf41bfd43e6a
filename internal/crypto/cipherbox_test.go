package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestSealOpen_Roundtrip(t *testing.T) {
	key := testKey(t)
	plaintext := []byte(`{"secrets":{"ai/api_keys_bundle":"sk-test"}}`)
	aad := []byte("IVLT\x01")

	blob, err := Seal(key, plaintext, aad)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if len(blob) != NonceSize+len(plaintext)+16 {
		t.Errorf("unexpected blob length %d", len(blob))
	}

	got, err := Open(key, blob, aad)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("roundtrip mismatch: got %q", got)
	}
}

func TestOpen_TamperAnyByte(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(key, []byte("secret payload"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}

	for i := range blob {
		tampered := bytes.Clone(blob)
		tampered[i] ^= 0x01
		if _, err := Open(key, tampered, nil); !errors.Is(err, ErrAuthentication) {
			t.Fatalf("byte %d: expected ErrAuthentication, got %v", i, err)
		}
	}
}

func TestOpen_WrongKey(t *testing.T) {
	blob, err := Seal(testKey(t), []byte("payload"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(testKey(t), blob, nil); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestOpen_WrongAAD(t *testing.T) {
	key := testKey(t)
	blob, err := Seal(key, []byte("payload"), []byte("v1"))
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if _, err := Open(key, blob, []byte("v2")); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication, got %v", err)
	}
}

func TestOpen_TooShort(t *testing.T) {
	if _, err := Open(testKey(t), make([]byte, NonceSize), nil); !errors.Is(err, ErrAuthentication) {
		t.Errorf("expected ErrAuthentication for truncated blob, got %v", err)
	}
}

func TestSeal_FreshNonce(t *testing.T) {
	key := testKey(t)
	a, err := Seal(key, []byte("same input"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	b, err := Seal(key, []byte("same input"), nil)
	if err != nil {
		t.Fatalf("seal: %v", err)
	}
	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Error("nonce reused across calls")
	}
}
