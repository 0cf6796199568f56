package domain

import (
	"time"

	"github.com/google/uuid"
)

// Presence is the live status of a user across all their connections.
type Presence string

const (
	PresenceOnline  Presence = "online"
	PresenceAway    Presence = "away"
	PresenceOffline Presence = "offline"
)

// User is owned by the account service; the core only mutates presence
// and last-seen, never deletes.
type User struct {
	ID          uuid.UUID `json:"id"`
	DisplayName string    `json:"display_name"`
	Presence    Presence  `json:"presence"`
	LastSeen    time.Time `json:"last_seen"`
}
