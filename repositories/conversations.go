//go:generate go run go.uber.org/mock/mockgen -source=conversations.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IConversationRepository interface {
	Create(ctx context.Context, conv domain.Conversation, members []domain.Membership) error
	GetOrCreatePrivate(ctx context.Context, conv domain.Conversation, a, b domain.Membership) (uuid.UUID, bool, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Conversation, error)
	TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error
	PinMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
	UnpinMessage(ctx context.Context, conversationID, messageID uuid.UUID) error
	Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type ConversationRepository struct {
	store
	index *SearchIndex
}

func NewConversationRepository(db *badger.DB, index *SearchIndex, log *slog.Logger,
	timeout time.Duration) *ConversationRepository {
	return &ConversationRepository{store: newStore(db, log, timeout), index: index}
}

// Create persists a group or channel conversation with its initial
// memberships in one transaction.
func (r *ConversationRepository) Create(ctx context.Context, conv domain.Conversation, members []domain.Membership) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		if err := setJSON(txn, convKey(conv.ID), conv); err != nil {
			return err
		}
		for _, m := range members {
			if err := putMembership(txn, m); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetOrCreatePrivate implements insert-if-absent-else-return-existing for
// the private pair. Both call orders resolve to the same pair key, so
// CreatePrivate(a,b) and CreatePrivate(b,a) converge on one conversation.
// The boolean reports whether a new conversation was created.
func (r *ConversationRepository) GetOrCreatePrivate(ctx context.Context, conv domain.Conversation,
	a, b domain.Membership) (uuid.UUID, bool, error) {
	var id uuid.UUID
	created := false

	err := r.update(ctx, func(txn *badger.Txn) error {
		key := pairKey(a.UserID, b.UserID)
		item, err := txn.Get(key)
		if err == nil {
			return item.Value(func(val []byte) error {
				existing, parseErr := uuid.Parse(string(val))
				id = existing
				return parseErr
			})
		}

		created = true
		id = conv.ID
		if err := txn.Set(key, []byte(conv.ID.String())); err != nil {
			return err
		}
		if err := setJSON(txn, convKey(conv.ID), conv); err != nil {
			return err
		}
		if err := putMembership(txn, a); err != nil {
			return err
		}
		return putMembership(txn, b)
	})
	return id, created, err
}

func (r *ConversationRepository) Get(ctx context.Context, id uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, convKey(id), &conv)
	})
	return conv, err
}

func (r *ConversationRepository) TouchActivity(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		var conv domain.Conversation
		if err := getJSON(txn, convKey(id), &conv); err != nil {
			return err
		}
		conv.LastActivity = at
		return setJSON(txn, convKey(id), conv)
	})
}

// PinMessage sets the pin on one message and atomically clears the
// previous pin, preserving the at-most-one-pinned invariant inside a
// single transaction.
func (r *ConversationRepository) PinMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		var conv domain.Conversation
		if err := getJSON(txn, convKey(conversationID), &conv); err != nil {
			return err
		}

		if conv.PinnedMessageID != nil && *conv.PinnedMessageID != messageID {
			if err := setMessagePinned(txn, *conv.PinnedMessageID, conversationID, false); err != nil && err != errors.ErrNotFound {
				return err
			}
		}
		if err := setMessagePinned(txn, messageID, conversationID, true); err != nil {
			return err
		}

		conv.PinnedMessageID = &messageID
		return setJSON(txn, convKey(conversationID), conv)
	})
}

func (r *ConversationRepository) UnpinMessage(ctx context.Context, conversationID, messageID uuid.UUID) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		var conv domain.Conversation
		if err := getJSON(txn, convKey(conversationID), &conv); err != nil {
			return err
		}
		if err := setMessagePinned(txn, messageID, conversationID, false); err != nil {
			return err
		}
		if conv.PinnedMessageID != nil && *conv.PinnedMessageID == messageID {
			conv.PinnedMessageID = nil
		}
		return setJSON(txn, convKey(conversationID), conv)
	})
}

// Delete cascades the whole conversation: messages with their reactions
// and read marks, memberships with reverse indexes, notification
// settings, the private pair key and the search index entries. Returns
// the ids of the deleted messages so the index can be cleaned after
// commit.
func (r *ConversationRepository) Delete(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var deletedMessages []uuid.UUID
	var memberIDs []uuid.UUID

	err := r.update(ctx, func(txn *badger.Txn) error {
		deletedMessages = deletedMessages[:0]
		memberIDs = memberIDs[:0]

		var conv domain.Conversation
		if err := getJSON(txn, convKey(id), &conv); err != nil {
			return err
		}

		// Messages and their reactions.
		msgPrefix := messagePrefix(id)
		for _, key := range keysWithPrefix(txn, msgPrefix) {
			suffix := string(key[len(msgPrefix):])
			parts := strings.SplitN(suffix, ":", 2)
			if len(parts) == 2 {
				if msgID, err := uuid.Parse(parts[1]); err == nil {
					deletedMessages = append(deletedMessages, msgID)
					if err := txn.Delete(messagePtrKey(msgID)); err != nil {
						return err
					}
					for _, rk := range keysWithPrefix(txn, reactionPrefix(msgID)) {
						if err := txn.Delete(rk); err != nil {
							return err
						}
					}
				}
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		// Read marks.
		for _, key := range keysWithPrefix(txn, readPrefix(id)) {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		// Memberships, reverse indexes and notification settings.
		mPrefix := memberPrefix(id)
		for _, key := range keysWithPrefix(txn, mPrefix) {
			if userID, err := uuid.Parse(string(key[len(mPrefix):])); err == nil {
				memberIDs = append(memberIDs, userID)
				if err := txn.Delete(memberOfKey(userID, id)); err != nil {
					return err
				}
				if err := txn.Delete(notifKey(userID, id)); err != nil {
					return err
				}
			}
			if err := txn.Delete(key); err != nil {
				return err
			}
		}

		if conv.Kind == domain.KindPrivate && len(memberIDs) == 2 {
			if err := txn.Delete(pairKey(memberIDs[0], memberIDs[1])); err != nil {
				return err
			}
		}

		return txn.Delete(convKey(id))
	})
	if err != nil {
		return nil, err
	}

	if r.index != nil {
		for _, msgID := range deletedMessages {
			if err := r.index.Remove(msgID); err != nil {
				r.log.Warn("failed to deindex message", "message_id", msgID, "error", err)
			}
		}
	}
	return deletedMessages, nil
}

// setMessagePinned flips the pinned flag on the stored message record.
func setMessagePinned(txn *badger.Txn, messageID, conversationID uuid.UUID, pinned bool) error {
	key, err := resolveMessageKey(txn, messageID)
	if err != nil {
		return err
	}
	var msg domain.Message
	if err := getJSON(txn, key, &msg); err != nil {
		return err
	}
	if msg.ConversationID != conversationID {
		return errors.ErrNotFound
	}
	msg.Pinned = pinned
	return setJSON(txn, key, msg)
}
