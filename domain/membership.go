package domain

import (
	"time"

	"github.com/google/uuid"
)

// Role orders conversation privileges. Private conversations carry
// RoleMember on both sides; group and channel conversations have exactly
// one owner at creation and must never be left without one.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

type Membership struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	UserID         uuid.UUID `json:"user_id"`
	Role           Role      `json:"role"`
	JoinedAt       time.Time `json:"joined_at"`
}
