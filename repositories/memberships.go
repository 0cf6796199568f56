//go:generate go run go.uber.org/mock/mockgen -source=memberships.go -destination=../mocks/mock_membership_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMembershipRepository interface {
	Get(ctx context.Context, conversationID, userID uuid.UUID) (domain.Membership, error)
	Put(ctx context.Context, m domain.Membership) error
	Remove(ctx context.Context, conversationID, userID uuid.UUID) error
	List(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error)
	ConversationsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

type MembershipRepository struct {
	store
}

func NewMembershipRepository(db *badger.DB, log *slog.Logger, timeout time.Duration) *MembershipRepository {
	return &MembershipRepository{store: newStore(db, log, timeout)}
}

func (r *MembershipRepository) Get(ctx context.Context, conversationID, userID uuid.UUID) (domain.Membership, error) {
	var m domain.Membership
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, memberKey(conversationID, userID), &m)
	})
	return m, err
}

func (r *MembershipRepository) Put(ctx context.Context, m domain.Membership) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		return putMembership(txn, m)
	})
}

func (r *MembershipRepository) Remove(ctx context.Context, conversationID, userID uuid.UUID) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		if err := txn.Delete(memberKey(conversationID, userID)); err != nil {
			return err
		}
		return txn.Delete(memberOfKey(userID, conversationID))
	})
}

func (r *MembershipRepository) List(ctx context.Context, conversationID uuid.UUID) ([]domain.Membership, error) {
	var members []domain.Membership
	err := r.view(ctx, func(txn *badger.Txn) error {
		members = members[:0]
		prefix := memberPrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var m domain.Membership
			err := it.Item().Value(func(val []byte) error {
				return unmarshalJSON(val, &m)
			})
			if err != nil {
				return err
			}
			members = append(members, m)
		}
		return nil
	})
	return members, err
}

// ConversationsOf walks the reverse index maintained by putMembership.
func (r *MembershipRepository) ConversationsOf(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.view(ctx, func(txn *badger.Txn) error {
		ids = ids[:0]
		prefix := memberOfPrefix(userID)
		for _, key := range keysWithPrefix(txn, prefix) {
			if id, err := uuid.Parse(string(key[len(prefix):])); err == nil {
				ids = append(ids, id)
			}
		}
		return nil
	})
	return ids, err
}

// putMembership writes the membership row and its reverse index entry.
// Shared with the conversation repository's creation paths.
func putMembership(txn *badger.Txn, m domain.Membership) error {
	if err := setJSON(txn, memberKey(m.ConversationID, m.UserID), m); err != nil {
		return err
	}
	return txn.Set(memberOfKey(m.UserID, m.ConversationID), []byte{1})
}
