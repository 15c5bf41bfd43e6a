package keychain

import (
	"bytes"
	"encoding/base64"
	"errors"
	"testing"
)

func TestLoad_GeneratesOnFreshInstall(t *testing.T) {
	kc := NewMemory()
	p := NewMasterKeyProvider(kc)

	key, err := p.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(key) != MasterKeyLen {
		t.Errorf("expected %d-byte key, got %d", MasterKeyLen, len(key))
	}

	stored, err := kc.Get(Service, masterKeyEntry)
	if err != nil {
		t.Fatalf("stored entry missing: %v", err)
	}
	decoded, err := base64.StdEncoding.DecodeString(stored)
	if err != nil {
		t.Fatalf("stored entry not base64: %v", err)
	}
	if !bytes.Equal(decoded, key) {
		t.Error("stored key does not match returned key")
	}
}

func TestLoad_SingleRoundTripPerProcess(t *testing.T) {
	kc := NewMemory()
	p := NewMasterKeyProvider(kc)

	first, err := p.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	trips := kc.RoundTrips()

	for range 10 {
		key, err := p.Load()
		if err != nil {
			t.Fatalf("repeat load: %v", err)
		}
		if !bytes.Equal(key, first) {
			t.Fatal("cached key changed between loads")
		}
	}

	if got := kc.RoundTrips(); got != trips {
		t.Errorf("expected no further secure-store calls, got %d extra", got-trips)
	}
}

func TestLoad_ExistingKeyIsReturned(t *testing.T) {
	kc := NewMemory()
	existing := bytes.Repeat([]byte{0xAB}, MasterKeyLen)
	kc.Preload(Service, masterKeyEntry, base64.StdEncoding.EncodeToString(existing))

	key, err := NewMasterKeyProvider(kc).Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(key, existing) {
		t.Error("existing key was not returned")
	}
	if kc.Sets != 0 {
		t.Error("load of an existing key must not write")
	}
}

func TestLoad_StoreFailureIsFatal(t *testing.T) {
	kc := NewMemory()
	kc.FailWith = errors.New("access denied")

	_, err := NewMasterKeyProvider(kc).Load()
	var initErr *InitError
	if !errors.As(err, &initErr) {
		t.Fatalf("expected InitError, got %v", err)
	}
}

func TestLoad_MalformedEntryIsFatal(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{"not base64", "%%%"},
		{"wrong length", base64.StdEncoding.EncodeToString([]byte("short"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kc := NewMemory()
			kc.Preload(Service, masterKeyEntry, tt.value)

			_, err := NewMasterKeyProvider(kc).Load()
			var initErr *InitError
			if !errors.As(err, &initErr) {
				t.Fatalf("expected InitError, got %v", err)
			}
			if kc.Sets != 0 {
				t.Error("malformed entry must not be overwritten")
			}
		})
	}
}

func TestLoad_FailureIsCached(t *testing.T) {
	kc := NewMemory()
	kc.FailWith = errors.New("store locked")
	p := NewMasterKeyProvider(kc)

	if _, err := p.Load(); err == nil {
		t.Fatal("expected error")
	}
	kc.FailWith = nil
	if _, err := p.Load(); err == nil {
		t.Fatal("a failed init must not silently recover mid-process")
	}
}
