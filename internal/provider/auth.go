package provider

import (
	"errors"
	"sync"
)

// ErrNoKeys is returned when NewAuthProfile is called without any keys.
var ErrNoKeys = errors.New("AuthProfile requires at least one key")

// AuthProfile manages a set of API keys for a single backend,
// supporting rotation when a key hits its quota.
type AuthProfile struct {
	mu   sync.Mutex
	keys []string
	idx  int
}

// NewAuthProfile creates an AuthProfile with the given keys. Empty keys
// are skipped; at least one non-empty key is required.
func NewAuthProfile(keys ...string) (*AuthProfile, error) {
	kept := make([]string, 0, len(keys))
	for _, k := range keys {
		if k != "" {
			kept = append(kept, k)
		}
	}
	if len(kept) == 0 {
		return nil, ErrNoKeys
	}
	return &AuthProfile{keys: kept}, nil
}

// CurrentKey returns the currently active API key.
func (a *AuthProfile) CurrentKey() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.keys[a.idx]
}

// Rotate advances to the next key in the list, wrapping around.
// Returns true if rotation happened (i.e. more than one key exists).
func (a *AuthProfile) Rotate() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) <= 1 {
		return false
	}
	a.idx = (a.idx + 1) % len(a.keys)
	return true
}

// RotateFrom advances past key only if it is still the active key. Concurrent
// callers that saw the same exhausted key rotate once, not once each.
func (a *AuthProfile) RotateFrom(key string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.keys) <= 1 || a.keys[a.idx] != key {
		return false
	}
	a.idx = (a.idx + 1) % len(a.keys)
	return true
}

// CurrentIndex returns the zero-based index of the active key.
func (a *AuthProfile) CurrentIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.idx
}

// Len returns the number of keys in the profile.
func (a *AuthProfile) Len() int {
	return len(a.keys)
}
