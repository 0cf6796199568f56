package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"chat-hub/authz"
	"chat-hub/domain"
	"chat-hub/domain/event"
	"chat-hub/errors"
	"chat-hub/moderation"
	"chat-hub/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// published is one recorded dispatcher call.
type published struct {
	room    *domain.RoomID
	user    *uuid.UUID
	exclude domain.ConnectionID
	event   event.DomainEvent
}

type fakeDispatcher struct {
	mu   sync.Mutex
	sent []published
}

func (d *fakeDispatcher) Publish(room domain.RoomID, e event.DomainEvent) {
	d.record(published{room: &room, event: e})
}

func (d *fakeDispatcher) PublishExcept(room domain.RoomID, exclude domain.ConnectionID, e event.DomainEvent) {
	d.record(published{room: &room, exclude: exclude, event: e})
}

func (d *fakeDispatcher) PublishToUser(userID uuid.UUID, e event.DomainEvent) {
	d.record(published{user: &userID, event: e})
}

func (d *fakeDispatcher) record(p published) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sent = append(d.sent, p)
}

func (d *fakeDispatcher) last(t *testing.T) published {
	t.Helper()
	d.mu.Lock()
	defer d.mu.Unlock()
	require.NotEmpty(t, d.sent, "no event was published")
	return d.sent[len(d.sent)-1]
}

func (d *fakeDispatcher) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sent)
}

type opsFixture struct {
	ops         *Operations
	dispatcher  *fakeDispatcher
	memberships repositories.IMembershipRepository
	messages    repositories.IMessageRepository
	reads       repositories.IReadRepository
	users       repositories.IUserRepository
}

func newOpsFixture(t *testing.T) *opsFixture {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	logger := slog.Default()
	timeout := 3 * time.Second
	conversations := repositories.NewConversationRepository(db, nil, logger, timeout)
	memberships := repositories.NewMembershipRepository(db, logger, timeout)
	messages := repositories.NewMessageRepository(db, nil, logger, timeout, nil)
	reactions := repositories.NewReactionRepository(db, logger, timeout)
	reads := repositories.NewReadRepository(db, logger, timeout)
	users := repositories.NewUserRepository(db, logger, timeout)
	notifications := repositories.NewNotificationRepository(db, logger, timeout)

	censor, err := moderation.NewCensor([]string{"heck"}, '*')
	req.NoError(err)

	dispatcher := &fakeDispatcher{}
	ops := NewOperations(logger, conversations, memberships, messages, reactions, reads,
		users, notifications, authz.NewAuthorizer(conversations, memberships), dispatcher, censor)

	return &opsFixture{
		ops:         ops,
		dispatcher:  dispatcher,
		memberships: memberships,
		messages:    messages,
		reads:       reads,
		users:       users,
	}
}

type room struct {
	conv   domain.Conversation
	owner  uuid.UUID
	admin  uuid.UUID
	member uuid.UUID
}

func testLogger() *slog.Logger {
	return slog.Default()
}

// newRoomWithMember creates a fresh group containing the given user as a
// plain member.
func (f *opsFixture) newRoomWithMember(t *testing.T, userID uuid.UUID) room {
	t.Helper()
	r := room{owner: uuid.New(), admin: uuid.New(), member: userID}
	conv, err := f.ops.CreateGroup(context.Background(), CreateGroupCommand{
		Name:      "room",
		Kind:      domain.KindGroup,
		CreatorID: r.owner,
		AdminIDs:  []uuid.UUID{r.admin},
		MemberIDs: []uuid.UUID{userID},
	})
	require.NoError(t, err)
	r.conv = conv
	return r
}

func (f *opsFixture) newRoom(t *testing.T, kind domain.Kind) room {
	t.Helper()
	r := room{owner: uuid.New(), admin: uuid.New(), member: uuid.New()}
	conv, err := f.ops.CreateGroup(context.Background(), CreateGroupCommand{
		Name:      "room",
		Kind:      kind,
		CreatorID: r.owner,
		AdminIDs:  []uuid.UUID{r.admin},
		MemberIDs: []uuid.UUID{r.member},
	})
	require.NoError(t, err)
	r.conv = conv
	return r
}

func Test_Create_Private_Is_Idempotent_Both_Orders(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	bob := uuid.New()
	first, err := f.ops.CreatePrivate(ctx, alice, bob)
	req.NoError(err)
	second, err := f.ops.CreatePrivate(ctx, bob, alice)
	req.NoError(err)
	req.Equal(first.ID, second.ID)
}

func Test_Create_Private_With_Self_Is_Rejected(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)

	userID := uuid.New()
	_, err := f.ops.CreatePrivate(context.Background(), userID, userID)
	req.ErrorIs(err, errors.ErrConflict)
}

func Test_Create_Group_Deduplicates_And_Excludes_Creator(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	ctx := context.Background()

	creator := uuid.New()
	other := uuid.New()
	conv, err := f.ops.CreateGroup(ctx, CreateGroupCommand{
		Name:      "dedup",
		Kind:      domain.KindGroup,
		CreatorID: creator,
		MemberIDs: []uuid.UUID{other, other, creator},
	})
	req.NoError(err)

	members, err := f.memberships.List(ctx, conv.ID)
	req.NoError(err)
	req.Len(members, 2)
	creatorRole, err := f.memberships.Get(ctx, conv.ID, creator)
	req.NoError(err)
	req.Equal(domain.RoleOwner, creatorRole.Role)
}

func Test_Create_Group_Rejects_Private_Kind(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)

	_, err := f.ops.CreateGroup(context.Background(), CreateGroupCommand{
		Name: "nope", Kind: domain.KindPrivate, CreatorID: uuid.New(),
	})
	req.ErrorIs(err, errors.ErrConflict)
}

func Test_Send_Broadcasts_To_Room(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	msg, err := f.ops.Send(context.Background(), SendCommand{
		ConversationID: r.conv.ID, SenderID: r.member, Content: "hello",
	})
	req.NoError(err)

	p := f.dispatcher.last(t)
	req.NotNil(p.room)
	req.Equal(domain.RoomOf(r.conv.ID), *p.room)
	created, ok := p.event.(event.MessageCreated)
	req.True(ok)
	req.Equal(msg.ID, created.Message.ID)
}

func Test_Send_Censors_Content(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	msg, err := f.ops.Send(context.Background(), SendCommand{
		ConversationID: r.conv.ID, SenderID: r.member, Content: "what the heck",
	})
	req.NoError(err)
	req.Equal("what the ****", msg.Content)
}

func Test_Send_Requires_Membership(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	_, err := f.ops.Send(context.Background(), SendCommand{
		ConversationID: r.conv.ID, SenderID: uuid.New(), Content: "hi",
	})
	req.ErrorIs(err, errors.ErrNotMember)
}

func Test_Send_In_Channel_Is_Staff_Only(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindChannel)
	ctx := context.Background()

	_, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.member, Content: "hi"})
	req.ErrorIs(err, errors.ErrForbidden)

	_, err = f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.admin, Content: "hi"})
	req.NoError(err)
}

func Test_Send_Rejects_Empty_Message(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	_, err := f.ops.Send(context.Background(), SendCommand{
		ConversationID: r.conv.ID, SenderID: r.member,
	})
	req.ErrorIs(err, errors.ErrConflict)
}

func Test_Edit_Is_Sender_Only(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.member, Content: "draft"})
	req.NoError(err)

	// Even the owner cannot edit someone else's message.
	_, err = f.ops.Edit(ctx, r.conv.ID, msg.ID, r.owner, "hijacked")
	req.ErrorIs(err, errors.ErrForbidden)

	edited, err := f.ops.Edit(ctx, r.conv.ID, msg.ID, r.member, "final")
	req.NoError(err)
	req.True(edited.Edited)
	req.NotNil(edited.EditedAt)
	req.Equal("final", edited.Content)
}

func Test_Delete_Is_Sender_Only_And_Cascades(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.member, Content: "oops"})
	req.NoError(err)

	req.ErrorIs(f.ops.Delete(ctx, r.conv.ID, msg.ID, r.admin), errors.ErrForbidden)
	req.NoError(f.ops.Delete(ctx, r.conv.ID, msg.ID, r.member))

	_, err = f.messages.Get(ctx, msg.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	p := f.dispatcher.last(t)
	deleted, ok := p.event.(event.MessageDeleted)
	req.True(ok)
	req.Equal(msg.ID, deleted.MessageID)
}

func Test_Mismatched_Conversation_Reads_As_Not_Found(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	first := f.newRoom(t, domain.KindGroup)
	second := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: first.conv.ID, SenderID: first.member, Content: "here"})
	req.NoError(err)

	_, err = f.ops.Edit(ctx, second.conv.ID, msg.ID, second.member, "there")
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Toggle_Reaction_Broadcasts_Full_Set(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.member, Content: "react"})
	req.NoError(err)

	set, err := f.ops.ToggleReaction(ctx, r.conv.ID, msg.ID, r.admin, "🔥")
	req.NoError(err)
	req.Len(set, 1)

	changed, ok := f.dispatcher.last(t).event.(event.ReactionChanged)
	req.True(ok)
	req.Len(changed.Reactions, 1)

	set, err = f.ops.ToggleReaction(ctx, r.conv.ID, msg.ID, r.admin, "🔥")
	req.NoError(err)
	req.Empty(set)
}

func Test_Mark_Read_Deduplicates_And_Broadcasts(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.owner, Content: "read me"})
	req.NoError(err)

	req.NoError(f.ops.MarkRead(ctx, r.conv.ID, r.member, []uuid.UUID{msg.ID, msg.ID}))

	updated, ok := f.dispatcher.last(t).event.(event.ReadUpdated)
	req.True(ok)
	req.Len(updated.Reads, 1)
	req.Equal(r.member, updated.UserID)
}

func Test_Pin_Requires_Staff(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.member, Content: "important"})
	req.NoError(err)

	req.ErrorIs(f.ops.Pin(ctx, r.conv.ID, msg.ID, r.member), errors.ErrForbidden)
	req.NoError(f.ops.Pin(ctx, r.conv.ID, msg.ID, r.admin))

	pinned, ok := f.dispatcher.last(t).event.(event.MessagePinned)
	req.True(ok)
	req.Equal(msg.ID, pinned.MessageID)
}

func Test_Deleting_Pinned_Message_Clears_Pin(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.admin, Content: "pinned"})
	req.NoError(err)
	req.NoError(f.ops.Pin(ctx, r.conv.ID, msg.ID, r.admin))
	req.NoError(f.ops.Delete(ctx, r.conv.ID, msg.ID, r.admin))

	summaries, err := f.ops.ListConversations(ctx, r.admin)
	req.NoError(err)
	req.Len(summaries, 1)
	req.Nil(summaries[0].Conversation.PinnedMessageID)
}

func Test_Add_Member_Follows_Matrix(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	// Plain members cannot manage membership.
	req.ErrorIs(f.ops.AddMember(ctx, r.conv.ID, r.member, uuid.New(), domain.RoleMember), errors.ErrForbidden)
	// Admins add plain members but not other admins.
	req.NoError(f.ops.AddMember(ctx, r.conv.ID, r.admin, uuid.New(), domain.RoleMember))
	req.ErrorIs(f.ops.AddMember(ctx, r.conv.ID, r.admin, uuid.New(), domain.RoleAdmin), errors.ErrForbidden)
	// Owners add admins; nobody grants ownership.
	req.NoError(f.ops.AddMember(ctx, r.conv.ID, r.owner, uuid.New(), domain.RoleAdmin))
	req.ErrorIs(f.ops.AddMember(ctx, r.conv.ID, r.owner, uuid.New(), domain.RoleOwner), errors.ErrConflict)
	// Re-adding an existing member conflicts.
	req.ErrorIs(f.ops.AddMember(ctx, r.conv.ID, r.owner, r.member, domain.RoleMember), errors.ErrConflict)
}

func Test_Add_Member_To_Private_Is_Forbidden(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	ctx := context.Background()

	alice := uuid.New()
	conv, err := f.ops.CreatePrivate(ctx, alice, uuid.New())
	req.NoError(err)

	// Private members have no management rights at all.
	req.ErrorIs(f.ops.AddMember(ctx, conv.ID, alice, uuid.New(), domain.RoleMember), errors.ErrForbidden)
}

func Test_Remove_Member_Protects_Owner_And_Self(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	req.ErrorIs(f.ops.RemoveMember(ctx, r.conv.ID, r.admin, r.owner), errors.ErrConflict)
	req.ErrorIs(f.ops.RemoveMember(ctx, r.conv.ID, r.admin, r.admin), errors.ErrForbidden)
	req.NoError(f.ops.RemoveMember(ctx, r.conv.ID, r.admin, r.member))

	_, err := f.memberships.Get(ctx, r.conv.ID, r.member)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Change_Role_Moves_Between_Member_And_Admin(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	req.ErrorIs(f.ops.ChangeRole(ctx, r.conv.ID, r.owner, r.member, domain.RoleOwner), errors.ErrConflict)
	req.ErrorIs(f.ops.ChangeRole(ctx, r.conv.ID, r.owner, r.owner, domain.RoleMember), errors.ErrConflict)

	req.NoError(f.ops.ChangeRole(ctx, r.conv.ID, r.owner, r.member, domain.RoleAdmin))
	promoted, err := f.memberships.Get(ctx, r.conv.ID, r.member)
	req.NoError(err)
	req.Equal(domain.RoleAdmin, promoted.Role)

	// An admin cannot demote another admin.
	req.ErrorIs(f.ops.ChangeRole(ctx, r.conv.ID, r.admin, r.member, domain.RoleMember), errors.ErrForbidden)
}

func Test_Delete_Conversation_Is_Owner_Only(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	req.ErrorIs(f.ops.DeleteConversation(ctx, r.conv.ID, r.admin), errors.ErrForbidden)
	req.NoError(f.ops.DeleteConversation(ctx, r.conv.ID, r.owner))

	summaries, err := f.ops.ListConversations(ctx, r.member)
	req.NoError(err)
	req.Empty(summaries)
}

func Test_Typing_Excludes_Origin_Connection(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	conn := domain.NewConnectionID()
	req.NoError(f.ops.Typing(context.Background(), r.conv.ID, r.member, conn))

	p := f.dispatcher.last(t)
	req.Equal(conn, p.exclude)
	_, ok := p.event.(event.TypingStarted)
	req.True(ok)
}

func Test_Typing_Is_Not_Persisted(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	req.NoError(f.ops.Typing(ctx, r.conv.ID, r.member, domain.NewConnectionID()))
	req.NoError(f.ops.StopTyping(ctx, r.conv.ID, r.member, domain.NewConnectionID()))

	messages, _, err := f.ops.ListMessages(ctx, r.conv.ID, r.member, nil)
	req.NoError(err)
	req.Empty(messages)
}

func Test_Notification_Settings_Echo_To_Owner_Only(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)

	setting := domain.NotificationSetting{
		UserID: r.member, ConversationID: r.conv.ID, Sound: false, Desktop: true,
	}
	req.NoError(f.ops.UpdateNotificationSettings(context.Background(), setting))

	p := f.dispatcher.last(t)
	req.NotNil(p.user)
	req.Equal(r.member, *p.user)
	updated, ok := p.event.(event.NotificationUpdated)
	req.True(ok)
	req.Equal(setting, updated.Setting)
}

func Test_List_Conversations_Newest_Activity_First(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	ctx := context.Background()

	userID := uuid.New()
	first, err := f.ops.CreateGroup(ctx, CreateGroupCommand{Name: "first", Kind: domain.KindGroup, CreatorID: userID})
	req.NoError(err)
	second, err := f.ops.CreateGroup(ctx, CreateGroupCommand{Name: "second", Kind: domain.KindGroup, CreatorID: userID})
	req.NoError(err)

	// Activity in the older conversation bumps it to the top.
	time.Sleep(5 * time.Millisecond)
	_, err = f.ops.Send(ctx, SendCommand{ConversationID: first.ID, SenderID: userID, Content: "bump"})
	req.NoError(err)

	summaries, err := f.ops.ListConversations(ctx, userID)
	req.NoError(err)
	req.Len(summaries, 2)
	req.Equal(first.ID, summaries[0].Conversation.ID)
	req.Equal(second.ID, summaries[1].Conversation.ID)
}

func Test_List_Conversations_Reports_Unread(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	r := f.newRoom(t, domain.KindGroup)
	ctx := context.Background()

	msg, err := f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.owner, Content: "one"})
	req.NoError(err)
	_, err = f.ops.Send(ctx, SendCommand{ConversationID: r.conv.ID, SenderID: r.owner, Content: "two"})
	req.NoError(err)

	req.NoError(f.ops.MarkRead(ctx, r.conv.ID, r.member, []uuid.UUID{msg.ID}))

	summaries, err := f.ops.ListConversations(ctx, r.member)
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal(1, summaries[0].UnreadCount)
}

func Test_Private_Conversation_Displays_Peer_Name(t *testing.T) {
	req := require.New(t)
	f := newOpsFixture(t)
	ctx := context.Background()

	alice, err := f.users.CreateAccount(ctx, "alice@example.com", "Alice", "hash")
	req.NoError(err)
	bob, err := f.users.CreateAccount(ctx, "bob@example.com", "Bob", "hash")
	req.NoError(err)

	_, err = f.ops.CreatePrivate(ctx, alice.ID, bob.ID)
	req.NoError(err)

	summaries, err := f.ops.ListConversations(ctx, alice.ID)
	req.NoError(err)
	req.Len(summaries, 1)
	req.Equal("Bob", summaries[0].DisplayName)
}
