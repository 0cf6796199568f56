//go:generate go run go.uber.org/mock/mockgen -source=reads.go -destination=../mocks/mock_read_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IReadRepository interface {
	Mark(ctx context.Context, conversationID, userID uuid.UUID, messageIDs []uuid.UUID, at time.Time) ([]domain.ReadMark, error)
	ListForMessage(ctx context.Context, conversationID, messageID uuid.UUID) ([]domain.ReadMark, error)
}

type ReadRepository struct {
	store
}

func NewReadRepository(db *badger.DB, log *slog.Logger, timeout time.Duration) *ReadRepository {
	return &ReadRepository{store: newStore(db, log, timeout)}
}

// Mark upserts one read mark per message. Keys are deterministic, so
// marking the same message twice overwrites the single existing row.
func (r *ReadRepository) Mark(ctx context.Context, conversationID, userID uuid.UUID,
	messageIDs []uuid.UUID, at time.Time) ([]domain.ReadMark, error) {
	marks := make([]domain.ReadMark, 0, len(messageIDs))
	err := r.update(ctx, func(txn *badger.Txn) error {
		marks = marks[:0]
		for _, msgID := range messageIDs {
			mark := domain.ReadMark{
				ConversationID: conversationID,
				MessageID:      msgID,
				UserID:         userID,
				ReadAt:         at,
			}
			if err := setJSON(txn, readKey(conversationID, msgID, userID), mark); err != nil {
				return err
			}
			marks = append(marks, mark)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return marks, nil
}

func (r *ReadRepository) ListForMessage(ctx context.Context, conversationID, messageID uuid.UUID) ([]domain.ReadMark, error) {
	var marks []domain.ReadMark
	err := r.view(ctx, func(txn *badger.Txn) error {
		marks = marks[:0]
		prefix := readMsgPrefix(conversationID, messageID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var mark domain.ReadMark
			err := it.Item().Value(func(val []byte) error {
				return unmarshalJSON(val, &mark)
			})
			if err != nil {
				return err
			}
			marks = append(marks, mark)
		}
		return nil
	})
	return marks, err
}
