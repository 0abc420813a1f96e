package chat

import (
	"errors"
	"fmt"
	"strings"
)

// Role identifies who authored a message on the client side.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

var (
	ErrNoMessages  = errors.New("messages are required")
	ErrInvalidRole = errors.New("invalid message role")
)

// Message is a single conversation turn as exchanged with the client.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is the body accepted by the chat relay.
type Request struct {
	Messages  []Message `json:"messages"`
	SessionID string    `json:"sessionId,omitempty"`
}

// Validate checks the request shape before anything is forwarded.
func (r Request) Validate() error {
	if len(r.Messages) == 0 {
		return ErrNoMessages
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("message %d: %w %q", i, ErrInvalidRole, msg.Role)
		}
	}
	return nil
}

// TrimTrailingPlaceholder drops a trailing assistant message that has no content yet.
func TrimTrailingPlaceholder(messages []Message) []Message {
	out := append([]Message(nil), messages...)
	if n := len(out); n > 0 {
		last := out[n-1]
		if last.Role == RoleAssistant && strings.TrimSpace(last.Content) == "" {
			out = out[:n-1]
		}
	}
	return out
}
