package domain

import (
	"time"

	"github.com/google/uuid"
)

// Reaction is a set member keyed by the (message, user, emoji) triple.
// Toggling adds the triple if absent and removes it if present.
type Reaction struct {
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	Emoji     string    `json:"emoji"`
}

// ReadMark is the per-user, per-message acknowledgment of having viewed
// a message. Upserts are idempotent; absence means unread.
type ReadMark struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
	UserID         uuid.UUID `json:"user_id"`
	ReadAt         time.Time `json:"read_at"`
}

// NotificationSetting is upsert-only per (user, conversation).
type NotificationSetting struct {
	UserID         uuid.UUID `json:"user_id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sound          bool      `json:"sound"`
	Desktop        bool      `json:"desktop"`
}
