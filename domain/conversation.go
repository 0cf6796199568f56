// Package domain contains the core concepts of the chat system:
// conversations, memberships, messages and the ephemeral identifiers
// used by the real-time layer.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the three conversation flavours.
type Kind string

const (
	KindPrivate Kind = "private"
	KindGroup   Kind = "group"
	KindChannel Kind = "channel"
)

// Conversation is the durable container of messages and memberships.
// PinnedMessageID holds at most one message; pinning a new message
// atomically clears the previous one.
type Conversation struct {
	ID              uuid.UUID  `json:"id"`
	Kind            Kind       `json:"kind"`
	Name            string     `json:"name"`
	CreatorID       uuid.UUID  `json:"creator_id"`
	PinnedMessageID *uuid.UUID `json:"pinned_message_id,omitempty"`
	LastActivity    time.Time  `json:"last_activity"`
	CreatedAt       time.Time  `json:"created_at"`
}
