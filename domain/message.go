package domain

import (
	"time"

	"github.com/google/uuid"
)

// FileDescriptor points at an uploaded attachment. The blob itself lives
// behind an opaque URL returned by the blob store.
type FileDescriptor struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
}

// Message is ordered strictly by CreatedAt, with ID as tie-break, within
// its conversation. Content is empty when the message is a pure file
// attachment.
type Message struct {
	ID             uuid.UUID       `json:"id"`
	ConversationID uuid.UUID       `json:"conversation_id"`
	SenderID       uuid.UUID       `json:"sender_id"`
	Content        string          `json:"content"`
	File           *FileDescriptor `json:"file,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	Edited         bool            `json:"edited"`
	EditedAt       *time.Time      `json:"edited_at,omitempty"`
	Pinned         bool            `json:"pinned"`
}
