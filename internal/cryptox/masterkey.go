package cryptox

import (
	"errors"
	"sync"
)

// ErrKeyDestroyed is returned by MasterKey.Use after Destroy.
var ErrKeyDestroyed = errors.New("master key destroyed")

// MasterKey owns the raw symmetric key for the duration of an unlocked
// session. The key is only reachable through Use, and Destroy wipes the
// backing memory, invalidating every copy of the capability.
type MasterKey struct {
	mu    sync.RWMutex
	key   []byte
	valid bool
}

// NewMasterKey copies b into a fresh MasterKey. The caller should wipe its
// own copy afterwards.
func NewMasterKey(b []byte) *MasterKey {
	k := make([]byte, len(b))
	copy(k, b)
	return &MasterKey{key: k, valid: true}
}

// Use invokes fn with the raw key bytes. fn must not retain the slice.
func (m *MasterKey) Use(fn func(key []byte) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if !m.valid {
		return ErrKeyDestroyed
	}
	return fn(m.key)
}

// Valid reports whether the key has not been destroyed.
func (m *MasterKey) Valid() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.valid
}

// Destroy wipes the key material. Safe to call more than once.
func (m *MasterKey) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	ClearBytes(m.key)
	m.key = nil
	m.valid = false
}
