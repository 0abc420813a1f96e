package upstream

import (
	"fmt"

	"github.com/zhouzirui/streamchat/internal/model/chat"
)

// Upstream roles.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Part is a single text part of upstream content.
type Part struct {
	Text string `json:"text"`
}

// Content is one turn in the upstream conversation shape.
type Content struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// GenerateRequest is the body of a streamGenerateContent call.
type GenerateRequest struct {
	Contents []Content `json:"contents"`
}

// streamEvent is the payload of one data line. Only the fields we read are declared.
type streamEvent struct {
	Candidates []struct {
		Content struct {
			Parts []Part `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func (e streamEvent) text() string {
	if len(e.Candidates) == 0 || len(e.Candidates[0].Content.Parts) == 0 {
		return ""
	}
	return e.Candidates[0].Content.Parts[0].Text
}

// ToContents maps client messages to upstream contents, renaming assistant to model.
func ToContents(messages []chat.Message) []Content {
	contents := make([]Content, 0, len(messages))
	for _, msg := range messages {
		role := RoleUser
		if msg.Role == chat.RoleAssistant {
			role = RoleModel
		}
		contents = append(contents, Content{
			Role:  role,
			Parts: []Part{{Text: msg.Content}},
		})
	}
	return contents
}

// StatusError is returned when the upstream answers with a non-success status.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream returned status %d: %s", e.Status, e.Body)
}
