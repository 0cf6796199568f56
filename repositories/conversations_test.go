package repositories

import (
	"context"
	"testing"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func privateConversation(creatorID uuid.UUID, at time.Time) domain.Conversation {
	return domain.Conversation{
		ID:           uuid.New(),
		Kind:         domain.KindPrivate,
		CreatorID:    creatorID,
		CreatedAt:    at,
		LastActivity: at,
	}
}

func membership(conversationID, userID uuid.UUID, role domain.Role, at time.Time) domain.Membership {
	return domain.Membership{ConversationID: conversationID, UserID: userID, Role: role, JoinedAt: at}
}

func Test_Private_Conversation_Converges_On_One(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	repository := NewConversationRepository(testDB(t), nil, testLogger(), testTimeout)

	alice := uuid.New()
	bob := uuid.New()
	at := time.Now().UTC()

	first := privateConversation(alice, at)
	id, created, err := repository.GetOrCreatePrivate(ctx, first,
		membership(first.ID, alice, domain.RoleMember, at),
		membership(first.ID, bob, domain.RoleMember, at))
	req.NoError(err)
	req.True(created)
	req.Equal(first.ID, id)

	// Reversed argument order resolves to the same pair.
	second := privateConversation(bob, at)
	id, created, err = repository.GetOrCreatePrivate(ctx, second,
		membership(second.ID, bob, domain.RoleMember, at),
		membership(second.ID, alice, domain.RoleMember, at))
	req.NoError(err)
	req.False(created)
	req.Equal(first.ID, id)

	_, err = repository.Get(ctx, second.ID)
	req.ErrorIs(err, errors.ErrNotFound)
}

func Test_Pin_Replaces_Previous_Pin(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := testDB(t)
	conversations := NewConversationRepository(db, nil, testLogger(), testTimeout)
	messages := NewMessageRepository(db, nil, testLogger(), testTimeout, nil)

	ownerID := uuid.New()
	at := time.Now().UTC()
	conv := domain.Conversation{
		ID: uuid.New(), Kind: domain.KindGroup, Name: "ops", CreatorID: ownerID,
		CreatedAt: at, LastActivity: at,
	}
	req.NoError(conversations.Create(ctx, conv, []domain.Membership{
		membership(conv.ID, ownerID, domain.RoleOwner, at),
	}))

	first := testMessage(conv.ID, ownerID, "pin me", at)
	second := testMessage(conv.ID, ownerID, "pin me instead", at.Add(time.Second))
	req.NoError(messages.Store(ctx, first))
	req.NoError(messages.Store(ctx, second))

	req.NoError(conversations.PinMessage(ctx, conv.ID, first.ID))
	req.NoError(conversations.PinMessage(ctx, conv.ID, second.ID))

	fetched, err := conversations.Get(ctx, conv.ID)
	req.NoError(err)
	req.NotNil(fetched.PinnedMessageID)
	req.Equal(second.ID, *fetched.PinnedMessageID)

	old, err := messages.Get(ctx, first.ID)
	req.NoError(err)
	req.False(old.Pinned)
	current, err := messages.Get(ctx, second.ID)
	req.NoError(err)
	req.True(current.Pinned)
}

func Test_Pin_Rejects_Foreign_Message(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := testDB(t)
	conversations := NewConversationRepository(db, nil, testLogger(), testTimeout)
	messages := NewMessageRepository(db, nil, testLogger(), testTimeout, nil)

	ownerID := uuid.New()
	at := time.Now().UTC()
	conv := domain.Conversation{ID: uuid.New(), Kind: domain.KindGroup, Name: "a", CreatorID: ownerID, CreatedAt: at, LastActivity: at}
	req.NoError(conversations.Create(ctx, conv, []domain.Membership{
		membership(conv.ID, ownerID, domain.RoleOwner, at),
	}))

	foreign := testMessage(uuid.New(), ownerID, "elsewhere", at)
	req.NoError(messages.Store(ctx, foreign))

	req.ErrorIs(conversations.PinMessage(ctx, conv.ID, foreign.ID), errors.ErrNotFound)
}

func Test_Unpin_Clears_Conversation_Pointer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := testDB(t)
	conversations := NewConversationRepository(db, nil, testLogger(), testTimeout)
	messages := NewMessageRepository(db, nil, testLogger(), testTimeout, nil)

	ownerID := uuid.New()
	at := time.Now().UTC()
	conv := domain.Conversation{ID: uuid.New(), Kind: domain.KindGroup, Name: "b", CreatorID: ownerID, CreatedAt: at, LastActivity: at}
	req.NoError(conversations.Create(ctx, conv, []domain.Membership{
		membership(conv.ID, ownerID, domain.RoleOwner, at),
	}))

	msg := testMessage(conv.ID, ownerID, "pinned", at)
	req.NoError(messages.Store(ctx, msg))
	req.NoError(conversations.PinMessage(ctx, conv.ID, msg.ID))
	req.NoError(conversations.UnpinMessage(ctx, conv.ID, msg.ID))

	fetched, err := conversations.Get(ctx, conv.ID)
	req.NoError(err)
	req.Nil(fetched.PinnedMessageID)
	unpinned, err := messages.Get(ctx, msg.ID)
	req.NoError(err)
	req.False(unpinned.Pinned)
}

func Test_Delete_Conversation_Cascades_Everything(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	db := testDB(t)
	conversations := NewConversationRepository(db, nil, testLogger(), testTimeout)
	memberships := NewMembershipRepository(db, testLogger(), testTimeout)
	messages := NewMessageRepository(db, nil, testLogger(), testTimeout, nil)
	reactions := NewReactionRepository(db, testLogger(), testTimeout)
	notifications := NewNotificationRepository(db, testLogger(), testTimeout)

	ownerID := uuid.New()
	memberID := uuid.New()
	at := time.Now().UTC()
	conv := domain.Conversation{ID: uuid.New(), Kind: domain.KindGroup, Name: "doomed", CreatorID: ownerID, CreatedAt: at, LastActivity: at}
	req.NoError(conversations.Create(ctx, conv, []domain.Membership{
		membership(conv.ID, ownerID, domain.RoleOwner, at),
		membership(conv.ID, memberID, domain.RoleMember, at),
	}))

	msg := testMessage(conv.ID, ownerID, "gone soon", at)
	req.NoError(messages.Store(ctx, msg))
	_, err := reactions.Toggle(ctx, testReaction(msg.ID, memberID, "🔥"))
	req.NoError(err)
	req.NoError(notifications.Upsert(ctx, domain.NotificationSetting{
		UserID: memberID, ConversationID: conv.ID, Sound: false, Desktop: false,
	}))

	deleted, err := conversations.Delete(ctx, conv.ID)
	req.NoError(err)
	req.Equal([]uuid.UUID{msg.ID}, deleted)

	_, err = conversations.Get(ctx, conv.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	_, err = messages.Get(ctx, msg.ID)
	req.ErrorIs(err, errors.ErrNotFound)
	set, err := reactions.ListForMessage(ctx, msg.ID)
	req.NoError(err)
	req.Empty(set)
	left, err := memberships.List(ctx, conv.ID)
	req.NoError(err)
	req.Empty(left)
	ids, err := memberships.ConversationsOf(ctx, memberID)
	req.NoError(err)
	req.Empty(ids)

	// Settings fall back to defaults once the stored row is gone.
	setting, err := notifications.Get(ctx, memberID, conv.ID)
	req.NoError(err)
	req.True(setting.Sound)
	req.True(setting.Desktop)
}
