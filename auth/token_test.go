package auth

import (
	"testing"
	"time"

	"chat-hub/errors"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func Test_Issue_And_Verify_Roundtrip(t *testing.T) {
	req := require.New(t)
	service := NewTokenService([]byte("test-signing-key"), time.Hour)

	userID := uuid.New()
	token, err := service.Issue(userID, "Alice")
	req.NoError(err)

	identity, err := service.Verify(token)
	req.NoError(err)
	req.Equal(userID, identity.UserID)
	req.Equal("Alice", identity.DisplayName)
}

func Test_Verify_Rejects_Wrong_Key(t *testing.T) {
	req := require.New(t)
	issuer := NewTokenService([]byte("key-one"), time.Hour)
	verifier := NewTokenService([]byte("key-two"), time.Hour)

	token, err := issuer.Issue(uuid.New(), "Alice")
	req.NoError(err)

	_, err = verifier.Verify(token)
	req.ErrorIs(err, errors.ErrAuthFailed)
}

func Test_Verify_Rejects_Expired_Token(t *testing.T) {
	req := require.New(t)
	service := NewTokenService([]byte("test-signing-key"), -time.Minute)

	token, err := service.Issue(uuid.New(), "Alice")
	req.NoError(err)

	_, err = service.Verify(token)
	req.ErrorIs(err, errors.ErrAuthFailed)
}

func Test_Verify_Rejects_Garbage(t *testing.T) {
	req := require.New(t)
	service := NewTokenService([]byte("test-signing-key"), time.Hour)

	_, err := service.Verify("not-a-token")
	req.ErrorIs(err, errors.ErrAuthFailed)
	_, err = service.Verify("")
	req.ErrorIs(err, errors.ErrAuthFailed)
}
