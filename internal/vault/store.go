// Package vault persists the encrypted secret map as a single file.
//
// File format (version 1):
//   - magic: "IVLT" (4 bytes)
//   - format version: 1 byte
//   - nonce: 24 bytes
//   - ciphertext + tag (XChaCha20-Poly1305)
//
// The magic+version header doubles as the AEAD associated data, so a blob
// cannot be replayed under a different format version. The file holds only
// ciphertext; callers keep the decrypted map in memory.
package vault

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ite-app/trustd/internal/crypto"
)

const formatVersion = 1

var magic = []byte("IVLT")

var (
	// ErrCorrupted means the file failed authentication: tampering, a wrong
	// master key, or a damaged header. It is surfaced, never auto-repaired.
	ErrCorrupted = errors.New("vault: corrupted or wrong key")

	// ErrUnsupportedVersion means the header is intact but written by a
	// newer format than this build understands.
	ErrUnsupportedVersion = errors.New("vault: unsupported format version")
)

// payload is the plaintext layout inside the encrypted blob.
type payload struct {
	Secrets map[string]string `json:"secrets"`
	Version int               `json:"version"`
}

// Store reads and writes one vault file. Writers are serialized through a
// single mutex; Load is expected to run once at startup, after which callers
// read from their own in-memory cache.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore creates a store for the vault file at path. The file is created
// on first Save.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the vault file location.
func (s *Store) Path() string { return s.path }

// Exists reports whether a vault file is present on disk.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load decrypts the vault file with masterKey. A missing file is a fresh
// install and yields an empty map; an authentication failure yields
// ErrCorrupted.
func (s *Store) Load(masterKey []byte) (map[string]string, error) {
	blob, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("vault: read %s: %w", s.path, err)
	}

	header, body, err := splitHeader(blob)
	if err != nil {
		return nil, err
	}

	plaintext, err := crypto.Open(masterKey, body, header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupted, err)
	}

	var p payload
	if err := json.Unmarshal(plaintext, &p); err != nil {
		return nil, fmt.Errorf("%w: undecodable payload", ErrCorrupted)
	}
	if p.Secrets == nil {
		p.Secrets = map[string]string{}
	}
	return p.Secrets, nil
}

// Save encrypts secrets with masterKey and atomically replaces the vault
// file: the blob is written to a temp file, fsynced, then renamed over the
// target. A crash mid-save never leaves a partial vault behind.
func (s *Store) Save(masterKey []byte, secrets map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	plaintext, err := json.Marshal(payload{Secrets: secrets, Version: formatVersion})
	if err != nil {
		return fmt.Errorf("vault: encode payload: %w", err)
	}

	header := fileHeader()
	body, err := crypto.Seal(masterKey, plaintext, header)
	if err != nil {
		return fmt.Errorf("vault: encrypt: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("vault: create dir: %w", err)
	}

	tmp := s.path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("vault: create temp file: %w", err)
	}
	if _, err := f.Write(header); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vault: write temp file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("vault: sync temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vault: close temp file: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("vault: rename: %w", err)
	}
	return nil
}

// Reset deletes the vault file. Destructive: all stored secrets are lost.
// Callers must obtain explicit user consent before invoking this.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("vault: remove %s: %w", s.path, err)
	}
	return nil
}

func fileHeader() []byte {
	h := make([]byte, 0, len(magic)+1)
	h = append(h, magic...)
	return append(h, formatVersion)
}

// splitHeader validates the magic and version and returns header and body.
func splitHeader(blob []byte) (header, body []byte, err error) {
	if len(blob) < len(magic)+1 {
		return nil, nil, fmt.Errorf("%w: truncated header", ErrCorrupted)
	}
	if string(blob[:len(magic)]) != string(magic) {
		return nil, nil, fmt.Errorf("%w: bad magic", ErrCorrupted)
	}
	if blob[len(magic)] != formatVersion {
		return nil, nil, fmt.Errorf("%w: version %d", ErrUnsupportedVersion, blob[len(magic)])
	}
	n := len(magic) + 1
	return blob[:n], blob[n:], nil
}
