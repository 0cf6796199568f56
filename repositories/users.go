//go:generate go run go.uber.org/mock/mockgen -source=users.go -destination=../mocks/mock_user_repository.go -package=mocks
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

// Account is the credential record owned by the account service. The
// core never reads the hash; only login does.
type Account struct {
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"password_hash"`
	CreatedAt    time.Time `json:"created_at"`
}

type IUserRepository interface {
	Get(ctx context.Context, id uuid.UUID) (domain.User, error)
	Put(ctx context.Context, u domain.User) error
	SetPresence(ctx context.Context, id uuid.UUID, presence domain.Presence, lastSeen time.Time) (domain.User, error)
	CreateAccount(ctx context.Context, email, displayName, passwordHash string) (domain.User, error)
	AccountByEmail(ctx context.Context, email string) (Account, error)
}

type UserRepository struct {
	store
}

func NewUserRepository(db *badger.DB, log *slog.Logger, timeout time.Duration) *UserRepository {
	return &UserRepository{store: newStore(db, log, timeout)}
}

func (r *UserRepository) Get(ctx context.Context, id uuid.UUID) (domain.User, error) {
	var u domain.User
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	return u, err
}

func (r *UserRepository) Put(ctx context.Context, u domain.User) error {
	return r.update(ctx, func(txn *badger.Txn) error {
		return setJSON(txn, userKey(u.ID), u)
	})
}

// SetPresence mutates only the presence fields and returns the updated
// user so callers can broadcast it.
func (r *UserRepository) SetPresence(ctx context.Context, id uuid.UUID,
	presence domain.Presence, lastSeen time.Time) (domain.User, error) {
	var u domain.User
	err := r.update(ctx, func(txn *badger.Txn) error {
		if err := getJSON(txn, userKey(id), &u); err != nil {
			return err
		}
		u.Presence = presence
		u.LastSeen = lastSeen
		return setJSON(txn, userKey(id), u)
	})
	return u, err
}

// CreateAccount registers a new user, rejecting duplicate emails with
// ErrConflict.
func (r *UserRepository) CreateAccount(ctx context.Context, email, displayName, passwordHash string) (domain.User, error) {
	user := domain.User{
		ID:          uuid.New(),
		DisplayName: displayName,
		Presence:    domain.PresenceOffline,
	}
	account := Account{
		UserID:       user.ID,
		Email:        email,
		PasswordHash: passwordHash,
		CreatedAt:    time.Now().UTC(),
	}
	err := r.update(ctx, func(txn *badger.Txn) error {
		taken, err := exists(txn, accountKey(email))
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrConflict
		}
		if err := setJSON(txn, accountKey(email), account); err != nil {
			return err
		}
		return setJSON(txn, userKey(user.ID), user)
	})
	if err != nil {
		return domain.User{}, err
	}
	return user, nil
}

func (r *UserRepository) AccountByEmail(ctx context.Context, email string) (Account, error) {
	var account Account
	err := r.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, accountKey(email), &account)
	})
	return account, err
}
