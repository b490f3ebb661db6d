// Package model provides domain types shared across packages.
package model

import (
	"fmt"

	"github.com/google/uuid"
)

// Citation identifies the source a fragment was retrieved from.
type Citation struct {
	DocID  string `json:"doc_id"`
	Title  string `json:"title"`
	URL    string `json:"url,omitempty"`
	App    string `json:"app,omitempty"`
	Entity string `json:"entity,omitempty"`
}

// String returns the canonical display form of a citation.
func (c Citation) String() string {
	if c.Title != "" {
		return fmt.Sprintf("%s (%s)", c.Title, c.DocID)
	}
	return c.DocID
}

// Fragment is a retrieved unit of content used as grounding for answers.
// Fragments are immutable once created.
type Fragment struct {
	ID         string   `json:"id"`
	Content    string   `json:"content"`
	Source     Citation `json:"source"`
	Confidence float64  `json:"confidence"`
}

// NewFragment creates a fragment with a generated id.
func NewFragment(content string, source Citation, confidence float64) Fragment {
	return Fragment{
		ID:         uuid.New().String(),
		Content:    content,
		Source:     source,
		Confidence: confidence,
	}
}

// ImageArtifact is an image gathered during a run, either attached by the
// user or returned by a tool.
type ImageArtifact struct {
	FileName         string `json:"file_name"`
	MimeType         string `json:"mime_type,omitempty"`
	URL              string `json:"url,omitempty"`
	Data             []byte `json:"data,omitempty"`
	IsUserAttachment bool   `json:"is_user_attachment"`
	AddedAtTurn      uint32 `json:"added_at_turn"`
}

// User identifies the requester a run belongs to.
type User struct {
	Email     string `json:"email"`
	Workspace string `json:"workspace"`
	UserID    int64  `json:"user_id"`
}

// ChatRef points at the conversation a run answers into.
type ChatRef struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id,omitempty"`
}
