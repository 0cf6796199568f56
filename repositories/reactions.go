//go:generate go run go.uber.org/mock/mockgen -source=reactions.go -destination=../mocks/mock_reaction_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IReactionRepository interface {
	Toggle(ctx context.Context, r domain.Reaction) (added bool, err error)
	ListForMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error)
}

type ReactionRepository struct {
	store
}

func NewReactionRepository(db *badger.DB, log *slog.Logger, timeout time.Duration) *ReactionRepository {
	return &ReactionRepository{store: newStore(db, log, timeout)}
}

// Toggle inserts the (message, user, emoji) triple if absent and removes
// it if present, in one transaction. Concurrent toggles on the same
// triple conflict at the Badger level and one of them retries, so a
// double-click never produces a duplicate or a lost toggle.
func (r *ReactionRepository) Toggle(ctx context.Context, reaction domain.Reaction) (bool, error) {
	added := false
	err := r.update(ctx, func(txn *badger.Txn) error {
		key := reactionKey(reaction.MessageID, reaction.UserID, reaction.Emoji)
		present, err := exists(txn, key)
		if err != nil {
			return err
		}
		if present {
			added = false
			return txn.Delete(key)
		}
		added = true
		return setJSON(txn, key, reaction)
	})
	return added, err
}

func (r *ReactionRepository) ListForMessage(ctx context.Context, messageID uuid.UUID) ([]domain.Reaction, error) {
	var reactions []domain.Reaction
	err := r.view(ctx, func(txn *badger.Txn) error {
		reactions = reactions[:0]
		prefix := reactionPrefix(messageID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var reaction domain.Reaction
			err := it.Item().Value(func(val []byte) error {
				return unmarshalJSON(val, &reaction)
			})
			if err != nil {
				return err
			}
			reactions = append(reactions, reaction)
		}
		return nil
	})
	return reactions, err
}
