//go:generate go run go.uber.org/mock/mockgen -source=operations.go -destination=../mocks/mock_operations.go -package=mocks
// Package services implements the conversation state machine. Every
// write, whether it entered through REST or through a socket, runs
// through Operations: validate via the authorizer, mutate the store,
// emit the resulting delta via the dispatcher.
package services

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"chat-hub/authz"
	"chat-hub/contract"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/metrics"
	"chat-hub/moderation"
	"chat-hub/repositories"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var validate = validator.New()

type SendCommand struct {
	ConversationID uuid.UUID
	SenderID       uuid.UUID
	Content        string
	File           *domain.FileDescriptor
}

type CreateGroupCommand struct {
	Name      string `validate:"required,min=1,max=128"`
	Kind      domain.Kind
	CreatorID uuid.UUID
	MemberIDs []uuid.UUID
	AdminIDs  []uuid.UUID
}

// ConversationSummary is the list-view projection: the conversation, the
// name to display (derived from the other participant for private
// chats) and the caller's unread count.
type ConversationSummary struct {
	Conversation domain.Conversation `json:"conversation"`
	DisplayName  string              `json:"display_name"`
	UnreadCount  int                 `json:"unread_count"`
}

// MemberInfo joins a membership row with the user's directory entry.
type MemberInfo struct {
	Membership  domain.Membership `json:"membership"`
	DisplayName string            `json:"display_name"`
	Presence    domain.Presence   `json:"presence"`
}

type Operations struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	memberships   repositories.IMembershipRepository
	messages      repositories.IMessageRepository
	reactions     repositories.IReactionRepository
	reads         repositories.IReadRepository
	users         repositories.IUserRepository
	notifications repositories.INotificationRepository
	authorizer    authz.IAuthorizer
	dispatcher    contract.IDispatcher
	censor        *moderation.Censor
	locks         stripedLocks
}

func NewOperations(
	log *slog.Logger,
	conversations repositories.IConversationRepository,
	memberships repositories.IMembershipRepository,
	messages repositories.IMessageRepository,
	reactions repositories.IReactionRepository,
	reads repositories.IReadRepository,
	users repositories.IUserRepository,
	notifications repositories.INotificationRepository,
	authorizer authz.IAuthorizer,
	dispatcher contract.IDispatcher,
	censor *moderation.Censor,
) *Operations {
	return &Operations{
		log:           log,
		conversations: conversations,
		memberships:   memberships,
		messages:      messages,
		reactions:     reactions,
		reads:         reads,
		users:         users,
		notifications: notifications,
		authorizer:    authorizer,
		dispatcher:    dispatcher,
		censor:        censor,
	}
}

// CreatePrivate returns the existing private conversation between the
// two users, or creates one. Both argument orders converge on the same
// conversation. No event is emitted; the caller gets a point-to-point
// ack.
func (o *Operations) CreatePrivate(ctx context.Context, a, b uuid.UUID) (domain.Conversation, error) {
	if a == b {
		return domain.Conversation{}, errors.ErrConflict
	}
	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:           uuid.New(),
		Kind:         domain.KindPrivate,
		CreatorID:    a,
		CreatedAt:    now,
		LastActivity: now,
	}
	memberA := domain.Membership{ConversationID: conv.ID, UserID: a, Role: domain.RoleMember, JoinedAt: now}
	memberB := domain.Membership{ConversationID: conv.ID, UserID: b, Role: domain.RoleMember, JoinedAt: now}

	id, created, err := o.conversations.GetOrCreatePrivate(ctx, conv, memberA, memberB)
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		return conv, nil
	}
	return o.conversations.Get(ctx, id)
}

// CreateGroup creates a group or channel with the creator as sole owner.
// Member and admin lists are deduplicated and the creator is excluded
// from both.
func (o *Operations) CreateGroup(ctx context.Context, cmd CreateGroupCommand) (domain.Conversation, error) {
	if err := validate.Struct(cmd); err != nil {
		return domain.Conversation{}, err
	}
	if cmd.Kind != domain.KindGroup && cmd.Kind != domain.KindChannel {
		return domain.Conversation{}, errors.ErrConflict
	}

	now := time.Now().UTC()
	conv := domain.Conversation{
		ID:           uuid.New(),
		Kind:         cmd.Kind,
		Name:         cmd.Name,
		CreatorID:    cmd.CreatorID,
		CreatedAt:    now,
		LastActivity: now,
	}

	members := []domain.Membership{{
		ConversationID: conv.ID, UserID: cmd.CreatorID, Role: domain.RoleOwner, JoinedAt: now,
	}}
	admins := lo.Uniq(cmd.AdminIDs)
	for _, id := range admins {
		if id == cmd.CreatorID {
			continue
		}
		members = append(members, domain.Membership{
			ConversationID: conv.ID, UserID: id, Role: domain.RoleAdmin, JoinedAt: now,
		})
	}
	for _, id := range lo.Uniq(cmd.MemberIDs) {
		if id == cmd.CreatorID || lo.Contains(admins, id) {
			continue
		}
		members = append(members, domain.Membership{
			ConversationID: conv.ID, UserID: id, Role: domain.RoleMember, JoinedAt: now,
		})
	}

	if err := o.conversations.Create(ctx, conv, members); err != nil {
		return domain.Conversation{}, err
	}
	return conv, nil
}

// Send validates the sender's role (channels are read-only for plain
// members), censors the content, persists the message and broadcasts
// message.created to the conversation room.
func (o *Operations) Send(ctx context.Context, cmd SendCommand) (domain.Message, error) {
	if _, err := o.authorizer.Authorize(ctx, cmd.SenderID, cmd.ConversationID, authz.ActionSend); err != nil {
		return domain.Message{}, err
	}
	if cmd.Content == "" && cmd.File == nil {
		return domain.Message{}, errors.ErrConflict
	}

	mu := o.locks.forConversation(cmd.ConversationID)
	mu.Lock()
	defer mu.Unlock()

	now := time.Now().UTC()
	msg := domain.Message{
		ID:             uuid.New(),
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        o.censored(cmd.Content),
		File:           cmd.File,
		CreatedAt:      now,
	}
	if err := o.messages.Store(ctx, msg); err != nil {
		return domain.Message{}, err
	}
	if err := o.conversations.TouchActivity(ctx, cmd.ConversationID, now); err != nil {
		o.log.Warn("failed to bump conversation activity", "conversation_id", cmd.ConversationID, "error", err)
	}
	metrics.MessagesStored.Inc()

	o.dispatcher.Publish(domain.RoomOf(cmd.ConversationID), event.MessageCreated{Message: msg})
	return msg, nil
}

// Edit is restricted to the original sender, regardless of role.
func (o *Operations) Edit(ctx context.Context, conversationID, messageID, senderID uuid.UUID, content string) (domain.Message, error) {
	if _, err := o.authorizer.Authorize(ctx, senderID, conversationID, authz.ActionRead); err != nil {
		return domain.Message{}, err
	}

	mu := o.locks.forConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := o.ownMessage(ctx, conversationID, messageID, senderID)
	if err != nil {
		return domain.Message{}, err
	}

	now := time.Now().UTC()
	msg.Content = o.censored(content)
	msg.Edited = true
	msg.EditedAt = &now
	if err := o.messages.Update(ctx, msg); err != nil {
		return domain.Message{}, err
	}

	o.dispatcher.Publish(domain.RoomOf(conversationID), event.MessageEdited{Message: msg})
	return msg, nil
}

// Delete hard-deletes the sender's own message; its reactions and read
// marks cascade with it.
func (o *Operations) Delete(ctx context.Context, conversationID, messageID, senderID uuid.UUID) error {
	if _, err := o.authorizer.Authorize(ctx, senderID, conversationID, authz.ActionRead); err != nil {
		return err
	}

	mu := o.locks.forConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	msg, err := o.ownMessage(ctx, conversationID, messageID, senderID)
	if err != nil {
		return err
	}
	if msg.Pinned {
		if err := o.conversations.UnpinMessage(ctx, conversationID, messageID); err != nil {
			o.log.Warn("failed to clear pin before delete", "message_id", messageID, "error", err)
		}
	}
	if err := o.messages.Delete(ctx, msg); err != nil {
		return err
	}

	o.dispatcher.Publish(domain.RoomOf(conversationID), event.MessageDeleted{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return nil
}

// ToggleReaction flips the (message, user, emoji) triple and broadcasts
// the message's full reaction set. Each emoji toggles independently;
// a user may hold several distinct reactions on one message.
func (o *Operations) ToggleReaction(ctx context.Context, conversationID, messageID, userID uuid.UUID, emoji string) ([]domain.Reaction, error) {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return nil, err
	}
	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg.ConversationID != conversationID {
		return nil, errors.ErrNotFound
	}

	if _, err := o.reactions.Toggle(ctx, domain.Reaction{
		MessageID: messageID, UserID: userID, Emoji: emoji,
	}); err != nil {
		return nil, err
	}

	set, err := o.reactions.ListForMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	o.dispatcher.Publish(domain.RoomOf(conversationID), event.ReactionChanged{
		ConversationID: conversationID,
		MessageID:      messageID,
		Reactions:      set,
	})
	return set, nil
}

// MarkRead upserts read marks for the given messages and broadcasts the
// delta. Idempotent: re-marking overwrites the single existing row.
func (o *Operations) MarkRead(ctx context.Context, conversationID, userID uuid.UUID, messageIDs []uuid.UUID) error {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return err
	}
	marks, err := o.reads.Mark(ctx, conversationID, userID, lo.Uniq(messageIDs), time.Now().UTC())
	if err != nil {
		return err
	}
	o.dispatcher.Publish(domain.RoomOf(conversationID), event.ReadUpdated{
		ConversationID: conversationID,
		UserID:         userID,
		Reads:          marks,
	})
	return nil
}

// Pin requires owner or admin. Setting a new pin atomically clears the
// previous one; at most one message per conversation is ever pinned.
func (o *Operations) Pin(ctx context.Context, conversationID, messageID, userID uuid.UUID) error {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionPin); err != nil {
		return err
	}

	mu := o.locks.forConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	if err := o.conversations.PinMessage(ctx, conversationID, messageID); err != nil {
		return err
	}
	o.dispatcher.Publish(domain.RoomOf(conversationID), event.MessagePinned{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return nil
}

func (o *Operations) Unpin(ctx context.Context, conversationID, messageID, userID uuid.UUID) error {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionPin); err != nil {
		return err
	}

	mu := o.locks.forConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	if err := o.conversations.UnpinMessage(ctx, conversationID, messageID); err != nil {
		return err
	}
	o.dispatcher.Publish(domain.RoomOf(conversationID), event.MessageUnpinned{
		ConversationID: conversationID,
		MessageID:      messageID,
	})
	return nil
}

// AddMember follows the management matrix: owners add anyone, admins add
// plain members only. Ownership is never granted after creation.
func (o *Operations) AddMember(ctx context.Context, conversationID, actorID, newUserID uuid.UUID, role domain.Role) error {
	actorRole, err := o.authorizer.Authorize(ctx, actorID, conversationID, authz.ActionManageMembers)
	if err != nil {
		return err
	}
	conv, err := o.conversations.Get(ctx, conversationID)
	if err != nil {
		return err
	}
	if conv.Kind == domain.KindPrivate {
		return errors.ErrForbidden
	}
	if role == "" {
		role = domain.RoleMember
	}
	if role == domain.RoleOwner {
		return errors.ErrConflict
	}
	if !authz.CanActOnMember(actorRole, role) {
		return errors.ErrForbidden
	}
	if _, err := o.memberships.Get(ctx, conversationID, newUserID); err == nil {
		return errors.ErrConflict
	} else if err != errors.ErrNotFound {
		return err
	}

	return o.memberships.Put(ctx, domain.Membership{
		ConversationID: conversationID,
		UserID:         newUserID,
		Role:           role,
		JoinedAt:       time.Now().UTC(),
	})
}

// RemoveMember rejects any removal of the sole owner, whoever asks.
func (o *Operations) RemoveMember(ctx context.Context, conversationID, actorID, targetID uuid.UUID) error {
	actorRole, err := o.authorizer.Authorize(ctx, actorID, conversationID, authz.ActionManageMembers)
	if err != nil {
		return err
	}
	target, err := o.memberships.Get(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		return errors.ErrConflict
	}
	if actorID == targetID {
		return errors.ErrForbidden
	}
	if !authz.CanActOnMember(actorRole, target.Role) {
		return errors.ErrForbidden
	}
	return o.memberships.Remove(ctx, conversationID, targetID)
}

// ChangeRole moves a member between member and admin. Ownership cannot
// be granted, and the sole owner cannot demote themselves.
func (o *Operations) ChangeRole(ctx context.Context, conversationID, actorID, targetID uuid.UUID, newRole domain.Role) error {
	actorRole, err := o.authorizer.Authorize(ctx, actorID, conversationID, authz.ActionManageMembers)
	if err != nil {
		return err
	}
	if newRole != domain.RoleAdmin && newRole != domain.RoleMember {
		return errors.ErrConflict
	}
	target, err := o.memberships.Get(ctx, conversationID, targetID)
	if err != nil {
		return err
	}
	if target.Role == domain.RoleOwner {
		// Demoting the sole owner would leave the conversation ownerless.
		return errors.ErrConflict
	}
	if !authz.CanActOnMember(actorRole, target.Role) || !authz.CanActOnMember(actorRole, newRole) {
		return errors.ErrForbidden
	}
	target.Role = newRole
	return o.memberships.Put(ctx, target)
}

// DeleteConversation cascades everything: members, messages, reactions,
// read marks and notification settings.
func (o *Operations) DeleteConversation(ctx context.Context, conversationID, actorID uuid.UUID) error {
	if _, err := o.authorizer.Authorize(ctx, actorID, conversationID, authz.ActionDeleteConversation); err != nil {
		return err
	}

	mu := o.locks.forConversation(conversationID)
	mu.Lock()
	defer mu.Unlock()

	_, err := o.conversations.Delete(ctx, conversationID)
	return err
}

// Typing broadcasts to the room excluding the sender's own connections.
// Nothing is persisted.
func (o *Operations) Typing(ctx context.Context, conversationID, userID uuid.UUID, conn domain.ConnectionID) error {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return err
	}
	o.dispatcher.PublishExcept(domain.RoomOf(conversationID), conn, event.TypingStarted{
		ConversationID: conversationID,
		UserID:         userID,
	})
	return nil
}

func (o *Operations) StopTyping(ctx context.Context, conversationID, userID uuid.UUID, conn domain.ConnectionID) error {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return err
	}
	o.dispatcher.PublishExcept(domain.RoomOf(conversationID), conn, event.TypingStopped{
		ConversationID: conversationID,
		UserID:         userID,
	})
	return nil
}

// UpdateNotificationSettings upserts and echoes the change to the
// user's own connections only.
func (o *Operations) UpdateNotificationSettings(ctx context.Context, setting domain.NotificationSetting) error {
	if _, err := o.authorizer.Authorize(ctx, setting.UserID, setting.ConversationID, authz.ActionRead); err != nil {
		return err
	}
	if err := o.notifications.Upsert(ctx, setting); err != nil {
		return err
	}
	o.dispatcher.PublishToUser(setting.UserID, event.NotificationUpdated{Setting: setting})
	return nil
}

// ListConversations returns the caller's conversations newest-activity
// first, with private-chat names derived from the other participant.
func (o *Operations) ListConversations(ctx context.Context, userID uuid.UUID) ([]ConversationSummary, error) {
	ids, err := o.memberships.ConversationsOf(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]ConversationSummary, 0, len(ids))
	for _, id := range ids {
		conv, err := o.conversations.Get(ctx, id)
		if err != nil {
			continue
		}
		name := conv.Name
		if conv.Kind == domain.KindPrivate {
			name = o.privateDisplayName(ctx, conv.ID, userID)
		}
		unread, err := o.messages.UnreadCount(ctx, id, userID)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, ConversationSummary{
			Conversation: conv,
			DisplayName:  name,
			UnreadCount:  unread,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Conversation.LastActivity.After(summaries[j].Conversation.LastActivity)
	})
	return summaries, nil
}

func (o *Operations) ListMessages(ctx context.Context, conversationID, userID uuid.UUID, cursor *string) ([]domain.Message, *string, error) {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return nil, nil, err
	}
	return o.messages.List(ctx, conversationID, cursor)
}

func (o *Operations) SearchMessages(ctx context.Context, conversationID, userID uuid.UUID, query string, limit int) ([]domain.Message, error) {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return nil, err
	}
	return o.messages.Search(ctx, conversationID, query, limit)
}

func (o *Operations) ListMembers(ctx context.Context, conversationID, userID uuid.UUID) ([]MemberInfo, error) {
	if _, err := o.authorizer.Authorize(ctx, userID, conversationID, authz.ActionRead); err != nil {
		return nil, err
	}
	members, err := o.memberships.List(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	return lo.Map(members, func(m domain.Membership, _ int) MemberInfo {
		info := MemberInfo{Membership: m, Presence: domain.PresenceOffline}
		if u, err := o.users.Get(ctx, m.UserID); err == nil {
			info.DisplayName = u.DisplayName
			info.Presence = u.Presence
		}
		return info
	}), nil
}

// ownMessage loads a message and verifies conversation and authorship.
func (o *Operations) ownMessage(ctx context.Context, conversationID, messageID, senderID uuid.UUID) (domain.Message, error) {
	msg, err := o.messages.Get(ctx, messageID)
	if err != nil {
		return domain.Message{}, err
	}
	if msg.ConversationID != conversationID {
		return domain.Message{}, errors.ErrNotFound
	}
	if msg.SenderID != senderID {
		return domain.Message{}, errors.ErrForbidden
	}
	return msg, nil
}

func (o *Operations) privateDisplayName(ctx context.Context, conversationID, viewerID uuid.UUID) string {
	members, err := o.memberships.List(ctx, conversationID)
	if err != nil {
		return ""
	}
	for _, m := range members {
		if m.UserID == viewerID {
			continue
		}
		if u, err := o.users.Get(ctx, m.UserID); err == nil {
			return u.DisplayName
		}
	}
	return ""
}

func (o *Operations) censored(content string) string {
	if o.censor == nil || content == "" {
		return content
	}
	return o.censor.Apply(content)
}
