package keychain

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// masterKeyEntry is the secure-store key holding the vault master key,
// unchanged from the predecessor architecture.
const masterKeyEntry = "ite:master_key_v1"

// MasterKeyLen is the master key length in bytes (256-bit).
const MasterKeyLen = 32

// InitError means the secure store is unavailable or access was denied.
// It is fatal: without the master key no secret is usable, and the process
// must refuse to fall back to unencrypted storage.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("keychain: secure store unusable: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// MasterKeyProvider obtains the single symmetric master key. The first Load
// queries the secure store, generating and storing a fresh key on a clean
// install; every later Load returns the process-cached copy, so the secure
// store sees exactly one round trip per process lifetime.
type MasterKeyProvider struct {
	kc      Keychain
	service string

	once sync.Once
	key  []byte
	err  error
}

// NewMasterKeyProvider creates a provider over kc using the default service
// name.
func NewMasterKeyProvider(kc Keychain) *MasterKeyProvider {
	return NewMasterKeyProviderForService(kc, Service)
}

// NewMasterKeyProviderForService creates a provider under a custom
// secure-store service name.
func NewMasterKeyProviderForService(kc Keychain, service string) *MasterKeyProvider {
	if service == "" {
		service = Service
	}
	return &MasterKeyProvider{kc: kc, service: service}
}

// Load returns the 256-bit master key, creating it on first use.
func (p *MasterKeyProvider) Load() ([]byte, error) {
	p.once.Do(func() {
		p.key, p.err = p.load()
	})
	return p.key, p.err
}

func (p *MasterKeyProvider) load() ([]byte, error) {
	encoded, err := p.kc.Get(p.service, masterKeyEntry)
	if errors.Is(err, ErrNotFound) {
		return p.generate()
	}
	if err != nil {
		return nil, &InitError{Err: err}
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil || len(key) != MasterKeyLen {
		// A malformed entry means some other writer damaged it. Overwriting
		// would orphan any vault sealed with the real key, so refuse.
		return nil, &InitError{Err: errors.New("stored master key is malformed")}
	}

	slog.Info("master key loaded from secure store")
	return key, nil
}

func (p *MasterKeyProvider) generate() ([]byte, error) {
	key := make([]byte, MasterKeyLen)
	if _, err := rand.Read(key); err != nil {
		return nil, &InitError{Err: err}
	}

	if err := p.kc.Set(p.service, masterKeyEntry, base64.StdEncoding.EncodeToString(key)); err != nil {
		return nil, &InitError{Err: err}
	}

	slog.Info("new master key generated and stored")
	return key, nil
}
