package auth

import (
	"time"

	"chat-hub/contract"
	"chat-hub/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the payload stored inside issued JWTs.
type Claims struct {
	UserID      string `json:"user_id"`
	DisplayName string `json:"display_name"`
	jwt.RegisteredClaims
}

// TokenService issues and verifies HS256 bearer tokens. The signing key
// comes from configuration, never from source.
type TokenService struct {
	key      []byte
	duration time.Duration
}

func NewTokenService(key []byte, duration time.Duration) *TokenService {
	return &TokenService{key: key, duration: duration}
}

// Issue creates a signed token for a user.
func (s *TokenService) Issue(userID uuid.UUID, displayName string) (string, error) {
	now := time.Now()
	claims := &Claims{
		UserID:      userID.String(),
		DisplayName: displayName,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(s.duration)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "chat-hub",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Verify parses and validates signature and expiry, resolving the caller
// identity. Any failure collapses to ErrAuthFailed so the transport never
// leaks parsing details.
func (s *TokenService) Verify(tokenString string) (contract.Identity, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		return s.key, nil
	})
	if err != nil || !token.Valid {
		return contract.Identity{}, errors.ErrAuthFailed
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return contract.Identity{}, errors.ErrAuthFailed
	}
	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		return contract.Identity{}, errors.ErrAuthFailed
	}
	return contract.Identity{UserID: userID, DisplayName: claims.DisplayName}, nil
}
