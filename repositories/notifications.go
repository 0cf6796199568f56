//go:generate go run go.uber.org/mock/mockgen -source=notifications.go -destination=../mocks/mock_notification_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"
	"time"

	"chat-hub/domain"
	"chat-hub/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type INotificationRepository interface {
	Upsert(ctx context.Context, s domain.NotificationSetting) error
	Get(ctx context.Context, userID, conversationID uuid.UUID) (domain.NotificationSetting, error)
}

type NotificationRepository struct {
	store
}

func NewNotificationRepository(db *badger.DB, log *slog.Logger, timeout time.Duration) *NotificationRepository {
	return &NotificationRepository{store: newStore(db, log, timeout)}
}

func (r *NotificationRepository) Upsert(ctx context.Context, s domain.NotificationSetting) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, notifKey(s.UserID, s.ConversationID), s)
	})
}

// Get returns the defaults (both flags on) when no row exists.
func (r *NotificationRepository) Get(ctx context.Context, userID, conversationID uuid.UUID) (domain.NotificationSetting, error) {
	setting := domain.NotificationSetting{
		UserID:         userID,
		ConversationID: conversationID,
		Sound:          true,
		Desktop:        true,
	}
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, notifKey(userID, conversationID), &setting)
	})
	if err == errors.ErrNotFound {
		return setting, nil
	}
	return setting, err
}
