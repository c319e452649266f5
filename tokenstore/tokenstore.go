// Package tokenstore persists the access and refresh credentials of one
// profile. It holds no session logic; every other component reads the
// current values from here at the moment it needs them.
package tokenstore

import (
	"errors"
	"sync"
)

// Key names a stored credential.
type Key string

const (
	AccessToken  Key = "access_token"
	RefreshToken Key = "refresh_token"
)

// Keys lists every credential key a Store manages.
var Keys = []Key{AccessToken, RefreshToken}

// ErrClosed is returned by writes on a store that has been closed.
var ErrClosed = errors.New("token store closed")

// Store is durable key/value storage for session credentials.
//
// Get never fails: a missing value and an unreadable value both report
// absent. Writes are visible to the next Get immediately. Clear and ClearAll
// are idempotent.
type Store interface {
	Get(key Key) (string, bool)
	Set(key Key, value string) error
	// SetPair writes both credentials in one transaction.
	SetPair(access, refresh string) error
	Clear(key Key) error
	ClearAll() error
}

// Memory is a process-local Store.
type Memory struct {
	mu     sync.RWMutex
	values map[Key]string
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory Store.
func NewMemory() *Memory {
	return &Memory{values: make(map[Key]string)}
}

func (m *Memory) Get(key Key) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *Memory) Set(key Key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *Memory) SetPair(access, refresh string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[AccessToken] = access
	m.values[RefreshToken] = refresh
	return nil
}

func (m *Memory) Clear(key Key) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *Memory) ClearAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.values)
	return nil
}

// Empty reports whether s holds neither credential.
func Empty(s Store) bool {
	for _, k := range Keys {
		if _, ok := s.Get(k); ok {
			return false
		}
	}
	return true
}
