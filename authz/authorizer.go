//go:generate go run go.uber.org/mock/mockgen -source=authorizer.go -destination=../mocks/mock_authorizer.go -package=mocks
// Package authz answers "may user X do this in conversation Y" in one
// place, instead of membership checks scattered through each operation.
// It is a pure read over the store; authorization never mutates state.
package authz

import (
	"context"

	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/repositories"

	"github.com/google/uuid"
)

// Action is a role-gated capability inside a conversation.
type Action string

const (
	ActionRead               Action = "read"
	ActionSend               Action = "send"
	ActionPin                Action = "pin"
	ActionManageMembers      Action = "manage_members"
	ActionDeleteConversation Action = "delete_conversation"
)

type IAuthorizer interface {
	Authorize(ctx context.Context, userID, conversationID uuid.UUID, action Action) (domain.Role, error)
}

type Authorizer struct {
	conversations repositories.IConversationRepository
	memberships   repositories.IMembershipRepository
}

func NewAuthorizer(conversations repositories.IConversationRepository,
	memberships repositories.IMembershipRepository) *Authorizer {
	return &Authorizer{conversations: conversations, memberships: memberships}
}

// Authorize resolves the caller's membership and applies the role gate
// for the action. A missing membership row fails with ErrNotMember
// before any role logic runs; role failures surface as ErrForbidden.
func (a *Authorizer) Authorize(ctx context.Context, userID, conversationID uuid.UUID, action Action) (domain.Role, error) {
	membership, err := a.memberships.Get(ctx, conversationID, userID)
	if err == errors.ErrNotFound {
		return "", errors.ErrNotMember
	}
	if err != nil {
		return "", err
	}

	switch action {
	case ActionRead:
		return membership.Role, nil

	case ActionSend:
		conv, err := a.conversations.Get(ctx, conversationID)
		if err != nil {
			return "", err
		}
		// Channels are read-only for plain members.
		if conv.Kind == domain.KindChannel && !isStaff(membership.Role) {
			return membership.Role, errors.ErrForbidden
		}
		return membership.Role, nil

	case ActionPin, ActionManageMembers:
		if !isStaff(membership.Role) {
			return membership.Role, errors.ErrForbidden
		}
		return membership.Role, nil

	case ActionDeleteConversation:
		if membership.Role != domain.RoleOwner {
			return membership.Role, errors.ErrForbidden
		}
		return membership.Role, nil

	default:
		return membership.Role, errors.ErrForbidden
	}
}

// CanActOnMember applies the member-management matrix: an owner acts on
// anyone but themselves; an admin may only touch plain members.
func CanActOnMember(actor, target domain.Role) bool {
	switch actor {
	case domain.RoleOwner:
		return true
	case domain.RoleAdmin:
		return target == domain.RoleMember
	default:
		return false
	}
}

func isStaff(role domain.Role) bool {
	return role == domain.RoleOwner || role == domain.RoleAdmin
}
