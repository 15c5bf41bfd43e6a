// Package secrets is the process-wide secret facade: a master key from the
// platform secure store, an encrypted vault file, and an in-memory cache in
// front of both. One Manager is constructed at startup and passed to every
// consumer; reads are cache-only and writes go through to the vault file.
package secrets

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ite-app/trustd/internal/keychain"
	"github.com/ite-app/trustd/internal/vault"
)

// ErrNotInitialized is returned when the API is used before Initialize
// completed. This is a programmer error, never silently bypassed.
var ErrNotInitialized = errors.New("secrets: manager not initialized")

// InitResult reports the outcome of Initialize.
type InitResult struct {
	Initialized bool `json:"initialized"`
	CachedCount int  `json:"cachedCount"`
}

// Manager combines the master-key provider and the vault store behind a
// cached key/value API. Keys are namespaced, `/`-separated strings
// (ai/api_keys_bundle, connector/<id>/token_json, ...); values are opaque.
type Manager struct {
	keys  *keychain.MasterKeyProvider
	store *vault.Store

	// mu guards cache and initialized. Readers take the read lock for map
	// access only and never wait on file I/O.
	mu          sync.RWMutex
	cache       map[string]string
	initialized bool
	masterKey   []byte

	// writeMu serializes write-through operations so concurrent mutations
	// cannot interleave their cache update and vault save.
	writeMu sync.Mutex
}

// NewManager creates an uninitialized Manager.
func NewManager(keys *keychain.MasterKeyProvider, store *vault.Store) *Manager {
	return &Manager{keys: keys, store: store, cache: map[string]string{}}
}

// Initialize loads the master key and decrypts the vault into the cache.
// Idempotent: a repeat call while initialized is a no-op reporting the
// current cache size. A corrupted vault surfaces vault.ErrCorrupted and
// leaves the manager uninitialized.
func (m *Manager) Initialize() (InitResult, error) {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.RLock()
	if m.initialized {
		n := len(m.cache)
		m.mu.RUnlock()
		return InitResult{Initialized: true, CachedCount: n}, nil
	}
	m.mu.RUnlock()

	key, err := m.keys.Load()
	if err != nil {
		return InitResult{}, err
	}

	cache, err := m.store.Load(key)
	if err != nil {
		return InitResult{}, err
	}

	m.mu.Lock()
	m.masterKey = key
	m.cache = cache
	m.initialized = true
	n := len(cache)
	m.mu.Unlock()

	slog.Info("secret manager initialized", "cached", n)
	return InitResult{Initialized: true, CachedCount: n}, nil
}

// Get returns the cached value for key. ok is false for unknown keys; a
// missing key is never an error.
func (m *Manager) Get(key string) (value string, ok bool, err error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return "", false, ErrNotInitialized
	}
	value, ok = m.cache[key]
	return value, ok, nil
}

// GetMany returns the cached values for keys. Unknown keys are simply absent
// from the result.
func (m *Manager) GetMany(keys []string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.cache[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Has reports cache membership without touching the value. No I/O, so UIs
// can show "configured" without a secure-store prompt.
func (m *Manager) Has(key string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return false, ErrNotInitialized
	}
	_, ok := m.cache[key]
	return ok, nil
}

// ListKeys returns all cache keys starting with prefix, sorted.
func (m *Manager) ListKeys(prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.initialized {
		return nil, ErrNotInitialized
	}
	var out []string
	for k := range m.cache {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Set stores one entry write-through: the cache is updated, then the whole
// map is re-encrypted and saved. If the save fails the cache update is
// rolled back and the error surfaced.
func (m *Manager) Set(key, value string) error {
	return m.SetMany(map[string]string{key: value})
}

// SetMany stores several entries in one vault write.
func (m *Manager) SetMany(entries map[string]string) error {
	if len(entries) == 0 {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	undo, snapshot, err := m.apply(func(cache map[string]string) {
		for k, v := range entries {
			cache[k] = v
		}
	})
	if err != nil {
		return err
	}

	if err := m.store.Save(m.masterKey, snapshot); err != nil {
		undo()
		return fmt.Errorf("secrets: persist failed: %w", err)
	}

	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	slog.Info("secrets stored", "keys", keys)
	return nil
}

// Delete removes keys from the cache and persists. Unknown keys are ignored.
func (m *Manager) Delete(keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	undo, snapshot, err := m.apply(func(cache map[string]string) {
		for _, k := range keys {
			delete(cache, k)
		}
	})
	if err != nil {
		return err
	}

	if err := m.store.Save(m.masterKey, snapshot); err != nil {
		undo()
		return fmt.Errorf("secrets: persist failed: %w", err)
	}

	slog.Info("secrets deleted", "keys", keys)
	return nil
}

// apply mutates the cache under lock and returns an undo closure restoring
// the pre-mutation state, plus a snapshot for the encrypt-and-save step that
// runs outside the cache lock. Caller holds writeMu.
func (m *Manager) apply(mutate func(map[string]string)) (undo func(), snapshot map[string]string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.initialized {
		return nil, nil, ErrNotInitialized
	}

	before := make(map[string]string, len(m.cache))
	for k, v := range m.cache {
		before[k] = v
	}

	mutate(m.cache)

	snapshot = make(map[string]string, len(m.cache))
	for k, v := range m.cache {
		snapshot[k] = v
	}

	undo = func() {
		m.mu.Lock()
		m.cache = before
		m.mu.Unlock()
	}
	return undo, snapshot, nil
}
