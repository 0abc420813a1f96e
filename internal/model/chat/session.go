package chat

import "time"

// StoredConversation is the short-lived server-side record of a session's history.
type StoredConversation struct {
	SessionID string    `json:"sessionId"`
	Messages  []Message `json:"messages"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether the entry is logically invalid at now.
func (c StoredConversation) Expired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}
