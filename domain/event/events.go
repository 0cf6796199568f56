// Package event defines the state deltas fanned out to live connections.
// Validation and authorization failures are never events; they are
// returned synchronously to the caller.
package event

import (
	"time"

	"chat-hub/domain"

	"github.com/google/uuid"
)

// DomainEvent is anything the dispatcher can deliver to a sink. The
// dispatcher carries the target room or user alongside the event.
type DomainEvent interface {
	Name() string
}

type MessageCreated struct {
	Message domain.Message `json:"message"`
}

func (e MessageCreated) Name() string { return "message.created" }

type MessageEdited struct {
	Message domain.Message `json:"message"`
}

func (e MessageEdited) Name() string { return "message.edited" }

type MessageDeleted struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

func (e MessageDeleted) Name() string { return "message.deleted" }

// ReactionChanged carries the full reaction set of the message so that
// clients never have to reconcile incremental toggles.
type ReactionChanged struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	MessageID      uuid.UUID         `json:"message_id"`
	Reactions      []domain.Reaction `json:"reactions"`
}

func (e ReactionChanged) Name() string { return "reaction.changed" }

type ReadUpdated struct {
	ConversationID uuid.UUID         `json:"conversation_id"`
	UserID         uuid.UUID         `json:"user_id"`
	Reads          []domain.ReadMark `json:"reads"`
}

func (e ReadUpdated) Name() string { return "read.updated" }

type MessagePinned struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

func (e MessagePinned) Name() string { return "message.pinned" }

type MessageUnpinned struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	MessageID      uuid.UUID `json:"message_id"`
}

func (e MessageUnpinned) Name() string { return "message.unpinned" }

type TypingStarted struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

func (e TypingStarted) Name() string { return "typing.start" }

type TypingStopped struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
}

func (e TypingStopped) Name() string { return "typing.stop" }

// PresenceChanged is published to every room the user has joined, and is
// the only event not tied to a single conversation.
type PresenceChanged struct {
	UserID   uuid.UUID       `json:"user_id"`
	Presence domain.Presence `json:"presence"`
	LastSeen time.Time       `json:"last_seen"`
}

func (e PresenceChanged) Name() string { return "presence.changed" }

// NotificationUpdated echoes a settings upsert to the owner's other
// connections only.
type NotificationUpdated struct {
	Setting domain.NotificationSetting `json:"setting"`
}

func (e NotificationUpdated) Name() string { return "notification.updated" }

// ErrorEvent is delivered point-to-point to the connection whose inbound
// operation failed.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e ErrorEvent) Name() string { return "error" }
