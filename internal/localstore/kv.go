// Package localstore is the client-local synchronous key→string store backing
// preferences, the shared task board and the message log.
package localstore

import (
	"errors"
	"sync"
)

// ErrEmptyKey is returned when a key is blank.
var ErrEmptyKey = errors.New("localstore: empty key")

// Well-known keys.
const (
	KeyPreferences = "notification_preferences"
	KeyTasks       = "shared_tasks"
	KeyMessages    = "agent_messages"
)

// KV is a synchronous string store. Get reports ok=false for a missing key.
type KV interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
}

// MemKV is an in-memory KV used by tests and ephemeral sessions.
type MemKV struct {
	mu   sync.RWMutex
	data map[string]string
	// FailSet, when non-nil, is returned by every Set.
	FailSet error
}

// NewMemKV returns an empty MemKV.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string]string)}
}

func (m *MemKV) Get(key string) (string, bool, error) {
	if key == "" {
		return "", false, ErrEmptyKey
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemKV) Set(key, value string) error {
	if key == "" {
		return ErrEmptyKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailSet != nil {
		return m.FailSet
	}
	m.data[key] = value
	return nil
}

func (m *MemKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
