package domain

import "github.com/google/uuid"

// RoomID identifies the ephemeral broadcast group of one conversation.
// It is a typed identifier, not a formatted string.
type RoomID uuid.UUID

func RoomOf(conversationID uuid.UUID) RoomID {
	return RoomID(conversationID)
}

func (r RoomID) String() string {
	return uuid.UUID(r).String()
}

// ConnectionID identifies a single live transport connection. One user
// may hold several connections (several tabs) at the same time.
type ConnectionID string

func NewConnectionID() ConnectionID {
	return ConnectionID(uuid.NewString())
}
