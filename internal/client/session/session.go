// Package session keeps a stable per-installation identifier for the chat client.
package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StorageKey is the fixed name the identifier is persisted under.
const StorageKey = "chat_session_id"

// ErrNotFound is returned by Storage when a key has no value.
var ErrNotFound = errors.New("session: key not found")

// Storage is a small persistent key/value store outside process memory.
type Storage interface {
	Load(key string) (string, error)
	Save(key, value string) error
}

// Manager hands out the session identifier, creating it on first use.
type Manager struct {
	storage Storage

	mu sync.Mutex
	id string
}

// NewManager returns a Manager backed by storage. storage may be nil, in which
// case identifiers only live as long as the Manager.
func NewManager(storage Storage) *Manager {
	return &Manager{storage: storage}
}

// ID returns the persisted identifier, creating and persisting one if needed.
// Persistence failures degrade to a process-lifetime identifier.
func (m *Manager) ID() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.id != "" {
		return m.id
	}

	if m.storage != nil {
		stored, err := m.storage.Load(StorageKey)
		switch {
		case err == nil && strings.TrimSpace(stored) != "":
			m.id = strings.TrimSpace(stored)
			return m.id
		case err != nil && !errors.Is(err, ErrNotFound):
			zap.S().Warnw("session storage unreadable, id will not survive restarts", "err", err)
		}
	}

	m.id = uuid.NewString()

	if m.storage != nil {
		if err := m.storage.Save(StorageKey, m.id); err != nil {
			zap.S().Warnw("session storage unwritable, id will not survive restarts", "err", err)
		}
	}
	return m.id
}
