// Package transcript holds the ordered chat messages shown to the user.
package transcript

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// Pending is shown in an assistant placeholder until text arrives.
const Pending = "Thinking…"

var (
	ErrPlaceholderOpen = errors.New("transcript: an assistant placeholder is already open")
	ErrUnknownMessage  = errors.New("transcript: message is not the open placeholder")
)

// Message is one entry of the transcript.
type Message struct {
	ID      string
	Role    chat.Role
	Content string
}

// ChangeKind tells observers what happened.
type ChangeKind int

const (
	ChangeAppend ChangeKind = iota
	ChangeUpdate
	ChangeClose
	ChangeReset
)

// Change is delivered to observers after every mutation.
type Change struct {
	Kind    ChangeKind
	Message Message
}

// Observer receives changes synchronously, in mutation order.
type Observer func(Change)

// Store is an append-only list of messages whose only mutable entry is the
// open assistant placeholder.
type Store struct {
	mu        sync.Mutex
	messages  []Message
	openID    string
	unfilled  map[string]struct{} // placeholders that never received text
	observers map[int]Observer
	nextObs   int
}

// New returns an empty transcript.
func New() *Store {
	return &Store{
		unfilled:  make(map[string]struct{}),
		observers: make(map[int]Observer),
	}
}

// Subscribe registers an observer and returns a function that removes it.
func (s *Store) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObs
	s.nextObs++
	s.observers[id] = fn
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.observers, id)
		s.mu.Unlock()
	}
}

// AppendUserMessage appends text as a user message. Blank text is ignored.
func (s *Store) AppendUserMessage(text string) (Message, bool) {
	if strings.TrimSpace(text) == "" {
		return Message{}, false
	}
	msg := Message{ID: uuid.NewString(), Role: chat.RoleUser, Content: text}

	s.mu.Lock()
	s.messages = append(s.messages, msg)
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAppend, Message: msg})
	return msg, true
}

// AppendAssistantPlaceholder opens a new assistant message showing Pending.
func (s *Store) AppendAssistantPlaceholder() (Message, error) {
	msg := Message{ID: uuid.NewString(), Role: chat.RoleAssistant, Content: Pending}

	s.mu.Lock()
	if s.openID != "" {
		s.mu.Unlock()
		return Message{}, ErrPlaceholderOpen
	}
	s.messages = append(s.messages, msg)
	s.openID = msg.ID
	s.unfilled[msg.ID] = struct{}{}
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeAppend, Message: msg})
	return msg, nil
}

// UpdatePlaceholderContent replaces the content of the open placeholder.
// Empty content leaves Pending in place.
func (s *Store) UpdatePlaceholderContent(id, content string) error {
	filled := content != ""
	if !filled {
		content = Pending
	}

	s.mu.Lock()
	if id == "" || id != s.openID {
		s.mu.Unlock()
		return ErrUnknownMessage
	}
	idx := s.indexLocked(id)
	s.messages[idx].Content = content
	if filled {
		delete(s.unfilled, id)
	}
	msg := s.messages[idx]
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeUpdate, Message: msg})
	return nil
}

// ClosePlaceholder freezes the placeholder; its content no longer changes.
func (s *Store) ClosePlaceholder(id string) {
	s.mu.Lock()
	if id == "" || id != s.openID {
		s.mu.Unlock()
		return
	}
	s.openID = ""
	msg := s.messages[s.indexLocked(id)]
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeClose, Message: msg})
}

// Messages returns a copy of the transcript in creation order.
func (s *Store) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.messages...)
}

// History returns role/content pairs to send upstream. The open placeholder
// and placeholders that closed without any text are left out.
func (s *Store) History() []chat.Message {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]chat.Message, 0, len(s.messages))
	for _, m := range s.messages {
		if _, ok := s.unfilled[m.ID]; ok {
			continue
		}
		out = append(out, chat.Message{Role: m.Role, Content: m.Content})
	}
	return out
}

// Open reports whether a placeholder is awaiting content.
func (s *Store) Open() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.openID != ""
}

// Reset clears every message.
func (s *Store) Reset() {
	s.mu.Lock()
	s.messages = nil
	s.openID = ""
	s.unfilled = make(map[string]struct{})
	s.mu.Unlock()

	s.notify(Change{Kind: ChangeReset})
}

// indexLocked searches from the end; the open placeholder is almost always last.
func (s *Store) indexLocked(id string) int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) notify(c Change) {
	s.mu.Lock()
	observers := make([]Observer, 0, len(s.observers))
	for i := 0; i < s.nextObs; i++ {
		if fn, ok := s.observers[i]; ok {
			observers = append(observers, fn)
		}
	}
	s.mu.Unlock()

	for _, fn := range observers {
		fn(c)
	}
}
