// Package credentials stores Gemini API keys for the studynotes CLI in the
// system keyring:
// - macOS: Keychain
// - Windows: Credential Manager
// - Linux: Secret Service (libsecret)
//
// Several keys may be stored; they are rotated by the generator when one is
// rate limited.
package credentials

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/zalando/go-keyring"
)

const (
	// keyringService is the service name used in the system keyring.
	keyringService = "studynotes"
	// keyringUser is the account name the API keys are stored under.
	keyringUser = "gemini-api-keys"
)

// Key sources reported by Resolve.
const (
	SourceConfig  = "config"
	SourceKeyring = "keyring"
	SourceNone    = "none"
)

var (
	// ErrNoAPIKey is returned when no API key is stored.
	ErrNoAPIKey = errors.New("no API key stored")
	// ErrKeyringUnavailable indicates the system keyring is not available.
	ErrKeyringUnavailable = errors.New("system keyring unavailable")
)

// Store manages API keys in the system keyring.
type Store struct {
	mu      sync.Mutex
	service string
	user    string
}

// NewStore creates a store using the default keyring entry.
func NewStore() *Store {
	return &Store{service: keyringService, user: keyringUser}
}

// Load returns the stored keys in the order they were saved.
func (s *Store) Load() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := keyring.Get(s.service, s.user)
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil, ErrNoAPIKey
		}
		return nil, fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}

	keys := splitKeys(raw)
	if len(keys) == 0 {
		return nil, ErrNoAPIKey
	}
	return keys, nil
}

// Save replaces the stored keys. Blank and duplicate keys are dropped.
func (s *Store) Save(keys []string) error {
	keys = normalize(keys)
	if len(keys) == 0 {
		return fmt.Errorf("at least one API key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Set(s.service, s.user, strings.Join(keys, "\n")); err != nil {
		return fmt.Errorf("%w: storing API keys: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Add appends a key to the stored set.
func (s *Store) Add(key string) error {
	existing, err := s.Load()
	if err != nil && !errors.Is(err, ErrNoAPIKey) {
		return err
	}
	return s.Save(append(existing, key))
}

// Delete removes all stored keys. Deleting when nothing is stored is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := keyring.Delete(s.service, s.user); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("%w: deleting API keys: %v", ErrKeyringUnavailable, err)
	}
	return nil
}

// Resolve returns the keys to use: configured keys (file or environment)
// win over the keyring. A missing keyring entry is not an error.
func (s *Store) Resolve(configured []string) ([]string, string, error) {
	if keys := normalize(configured); len(keys) > 0 {
		return keys, SourceConfig, nil
	}

	keys, err := s.Load()
	switch {
	case err == nil:
		return keys, SourceKeyring, nil
	case errors.Is(err, ErrNoAPIKey):
		return nil, SourceNone, nil
	default:
		return nil, SourceNone, err
	}
}

// Description returns a description of the keyring backend.
func Description() string {
	switch runtime.GOOS {
	case "darwin":
		return "macOS Keychain"
	case "windows":
		return "Windows Credential Manager"
	default:
		return "System Keyring (Secret Service)"
	}
}

// MaskAPIKey returns a masked API key showing only its prefix.
func MaskAPIKey(apiKey string) string {
	if len(apiKey) <= 8 {
		return strings.Repeat("*", len(apiKey))
	}
	return apiKey[:4] + strings.Repeat("*", 8) + "..."
}

// KeyID creates a short stable ID for an API key (for display purposes).
func KeyID(apiKey string) string {
	hash := sha256.Sum256([]byte(apiKey))
	return hex.EncodeToString(hash[:4])
}

func splitKeys(raw string) []string {
	return normalize(strings.Split(raw, "\n"))
}

func normalize(keys []string) []string {
	seen := make(map[string]bool, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}
