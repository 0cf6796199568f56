package services

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"chat-hub/auth"
	"chat-hub/errors"
	"chat-hub/repositories"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"
)

func newAccountService(t *testing.T) (*AccountService, *auth.TokenService) {
	t.Helper()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	req.NoError(err)
	t.Cleanup(func() { _ = db.Close() })

	users := repositories.NewUserRepository(db, slog.Default(), 3*time.Second)
	tokens := auth.NewTokenService([]byte("test-key"), time.Hour)
	return NewAccountService(slog.Default(), users, tokens), tokens
}

func Test_Register_Issues_Usable_Token(t *testing.T) {
	req := require.New(t)
	accounts, tokens := newAccountService(t)

	user, token, err := accounts.Register(context.Background(), auth.RegisterRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "Sup3r.Secret.Pass",
	})
	req.NoError(err)
	req.NotEmpty(token)

	identity, err := tokens.Verify(token)
	req.NoError(err)
	req.Equal(user.ID, identity.UserID)
	req.Equal("Alice", identity.DisplayName)
}

func Test_Register_Rejects_Weak_Password(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccountService(t)

	_, _, err := accounts.Register(context.Background(), auth.RegisterRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "alllowercaseletters",
	})
	req.ErrorIs(err, errors.ErrInvalidPassword)
}

func Test_Register_Rejects_Duplicate_Email(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccountService(t)
	ctx := context.Background()

	request := auth.RegisterRequest{Email: "alice@example.com", DisplayName: "Alice", Password: "Sup3r.Secret.Pass"}
	_, _, err := accounts.Register(ctx, request)
	req.NoError(err)
	_, _, err = accounts.Register(ctx, request)
	req.ErrorIs(err, errors.ErrConflict)
}

func Test_Login_Succeeds_With_Correct_Credentials(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccountService(t)
	ctx := context.Background()

	registered, _, err := accounts.Register(ctx, auth.RegisterRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "Sup3r.Secret.Pass",
	})
	req.NoError(err)

	user, token, err := accounts.Login(ctx, auth.LoginRequest{
		Email: "alice@example.com", Password: "Sup3r.Secret.Pass",
	})
	req.NoError(err)
	req.Equal(registered.ID, user.ID)
	req.NotEmpty(token)
}

func Test_Login_Failures_Are_Indistinguishable(t *testing.T) {
	req := require.New(t)
	accounts, _ := newAccountService(t)
	ctx := context.Background()

	_, _, err := accounts.Register(ctx, auth.RegisterRequest{
		Email: "alice@example.com", DisplayName: "Alice", Password: "Sup3r.Secret.Pass",
	})
	req.NoError(err)

	_, _, wrongPassword := accounts.Login(ctx, auth.LoginRequest{
		Email: "alice@example.com", Password: "Wrong.Password1!",
	})
	_, _, unknownEmail := accounts.Login(ctx, auth.LoginRequest{
		Email: "nobody@example.com", Password: "Sup3r.Secret.Pass",
	})
	req.ErrorIs(wrongPassword, errors.ErrAuthFailed)
	req.ErrorIs(unknownEmail, errors.ErrAuthFailed)
}
