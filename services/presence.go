package services

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/repositories"

	"github.com/google/uuid"
)

// PresenceService flips the durable presence flag and broadcasts the
// change to every room of the user's conversations. The registry's
// per-user connection count decides when Connected/Disconnected fire;
// this service only reacts to the first and last connection.
type PresenceService struct {
	log         *slog.Logger
	users       repositories.IUserRepository
	memberships repositories.IMembershipRepository
	dispatcher  contract.IDispatcher
}

func NewPresenceService(log *slog.Logger, users repositories.IUserRepository,
	memberships repositories.IMembershipRepository, dispatcher contract.IDispatcher) *PresenceService {
	return &PresenceService{log: log, users: users, memberships: memberships, dispatcher: dispatcher}
}

// Connected marks the user online. Called only for the user's first live
// connection.
func (s *PresenceService) Connected(ctx context.Context, userID uuid.UUID) {
	s.transition(ctx, userID, domain.PresenceOnline)
}

// Disconnected marks the user offline with last-seen = now. Called only
// when the user's last live connection closed.
func (s *PresenceService) Disconnected(ctx context.Context, userID uuid.UUID) {
	s.transition(ctx, userID, domain.PresenceOffline)
}

// SetStatus applies an explicit status change (online/away) requested by
// the user.
func (s *PresenceService) SetStatus(ctx context.Context, userID uuid.UUID, presence domain.Presence) error {
	switch presence {
	case domain.PresenceOnline, domain.PresenceAway:
		s.transition(ctx, userID, presence)
		return nil
	default:
		// Offline is owned by the connection lifecycle.
		return nil
	}
}

func (s *PresenceService) transition(ctx context.Context, userID uuid.UUID, presence domain.Presence) {
	user, err := s.users.SetPresence(ctx, userID, presence, time.Now().UTC())
	if err != nil {
		s.log.Warn("failed to persist presence", "user_id", userID, "error", err)
		return
	}

	ids, err := s.memberships.ConversationsOf(ctx, userID)
	if err != nil {
		s.log.Warn("failed to resolve rooms for presence broadcast", "user_id", userID, "error", err)
		return
	}
	changed := event.PresenceChanged{
		UserID:   userID,
		Presence: user.Presence,
		LastSeen: user.LastSeen,
	}
	for _, conversationID := range ids {
		s.dispatcher.Publish(domain.RoomOf(conversationID), changed)
	}
}
