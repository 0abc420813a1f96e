package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// MemoryStore is a process-local Store guarded by a RWMutex.
// Expired entries stay in memory until the next Sweep.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]chat.StoredConversation
	ttl     time.Duration
	now     func() time.Time
}

// MemoryOption customises a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithClock replaces the time source, mainly for tests.
func WithClock(now func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		s.now = now
	}
}

// NewMemoryStore returns an empty store whose entries live for ttl.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &MemoryStore{
		entries: make(map[string]chat.StoredConversation),
		ttl:     ttl,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *MemoryStore) Set(_ context.Context, sessionID string, messages []chat.Message) error {
	entry := chat.StoredConversation{
		SessionID: sessionID,
		Messages:  append([]chat.Message(nil), messages...),
		ExpiresAt: s.now().Add(s.ttl),
	}

	s.mu.Lock()
	s.entries[sessionID] = entry
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Get(_ context.Context, sessionID string) (chat.StoredConversation, bool, error) {
	s.mu.RLock()
	entry, ok := s.entries[sessionID]
	s.mu.RUnlock()

	if !ok || entry.Expired(s.now()) {
		return chat.StoredConversation{}, false, nil
	}
	entry.Messages = append([]chat.Message(nil), entry.Messages...)
	return entry, true, nil
}

func (s *MemoryStore) Sweep(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if entry.Expired(now) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed, nil
}

func (s *MemoryStore) Sessions(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.entries))
	for id := range s.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
