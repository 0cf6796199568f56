package services

import (
	"context"
	"log/slog"

	"chat-hub/auth"
	"chat-hub/domain"
	"chat-hub/errors"
	"chat-hub/repositories"
)

// AccountService is the thin credential-issuance collaborator: register
// and login, nothing more. The core only ever sees verified identities.
type AccountService struct {
	log    *slog.Logger
	users  repositories.IUserRepository
	tokens *auth.TokenService
}

func NewAccountService(log *slog.Logger, users repositories.IUserRepository,
	tokens *auth.TokenService) *AccountService {
	return &AccountService{log: log, users: users, tokens: tokens}
}

// Register creates the account and returns a signed token.
func (s *AccountService) Register(ctx context.Context, req auth.RegisterRequest) (domain.User, string, error) {
	if err := auth.ValidateRegister(req); err != nil {
		return domain.User{}, "", err
	}
	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return domain.User{}, "", err
	}
	user, err := s.users.CreateAccount(ctx, req.Email, req.DisplayName, hash)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := s.tokens.Issue(user.ID, user.DisplayName)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}

// Login verifies credentials. Unknown email and wrong password collapse
// to the same ErrAuthFailed so the endpoint can't be used to probe for
// accounts.
func (s *AccountService) Login(ctx context.Context, req auth.LoginRequest) (domain.User, string, error) {
	if err := auth.ValidateLogin(req); err != nil {
		return domain.User{}, "", err
	}
	account, err := s.users.AccountByEmail(ctx, req.Email)
	if err != nil {
		return domain.User{}, "", errors.ErrAuthFailed
	}
	ok, err := auth.ComparePassword(req.Password, account.PasswordHash)
	if err != nil || !ok {
		return domain.User{}, "", errors.ErrAuthFailed
	}
	user, err := s.users.Get(ctx, account.UserID)
	if err != nil {
		return domain.User{}, "", err
	}
	token, err := s.tokens.Issue(user.ID, user.DisplayName)
	if err != nil {
		return domain.User{}, "", err
	}
	return user, token, nil
}
