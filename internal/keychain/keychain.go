// Package keychain abstracts the platform secure store and owns the vault
// master key. Only two things ever touch the secure store: the master-key
// entry (once per process) and legacy migration reads.
package keychain

import (
	"errors"
	"fmt"
	"sync"

	"github.com/zalando/go-keyring"
)

// Service is the secure-store service name shared with the predecessor
// architecture, so legacy entries remain readable for migration.
const Service = "com.ite.app"

// ErrNotFound is returned when no entry exists for the requested key.
var ErrNotFound = errors.New("keychain: entry not found")

// Keychain is the minimal secure-store surface. The system implementation
// talks to the OS keyring; tests inject a counting in-memory double, and
// server deployments can back it with a KMS without touching the callers.
type Keychain interface {
	Get(service, key string) (string, error)
	Set(service, key, value string) error
	Delete(service, key string) error
}

// System is the OS-backed keychain (macOS Keychain, Windows Credential
// Manager, Secret Service on Linux).
type System struct{}

func (System) Get(service, key string) (string, error) {
	v, err := keyring.Get(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("keychain: get %s: %w", key, err)
	}
	return v, nil
}

func (System) Set(service, key, value string) error {
	if err := keyring.Set(service, key, value); err != nil {
		return fmt.Errorf("keychain: set %s: %w", key, err)
	}
	return nil
}

func (System) Delete(service, key string) error {
	err := keyring.Delete(service, key)
	if errors.Is(err, keyring.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("keychain: delete %s: %w", key, err)
	}
	return nil
}

// Memory is an in-memory Keychain for tests. It counts secure-store round
// trips so tests can assert the single-access invariant.
type Memory struct {
	mu      sync.Mutex
	entries map[string]string

	Gets    int
	Sets    int
	Deletes int

	// FailWith, when set, makes every call return this error.
	FailWith error
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]string{}}
}

func (m *Memory) Get(service, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Gets++
	if m.FailWith != nil {
		return "", m.FailWith
	}
	v, ok := m.entries[service+"/"+key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *Memory) Set(service, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Sets++
	if m.FailWith != nil {
		return m.FailWith
	}
	m.entries[service+"/"+key] = value
	return nil
}

func (m *Memory) Delete(service, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes++
	if m.FailWith != nil {
		return m.FailWith
	}
	k := service + "/" + key
	if _, ok := m.entries[k]; !ok {
		return ErrNotFound
	}
	delete(m.entries, k)
	return nil
}

// Preload inserts an entry without counting it as a round trip. Tests use it
// to seed legacy secrets.
func (m *Memory) Preload(service, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[service+"/"+key] = value
}

// RoundTrips returns the total number of secure-store calls.
func (m *Memory) RoundTrips() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Gets + m.Sets + m.Deletes
}
