package main

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, sub, room string, expiresIn time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, loungeClaims{
		Room: room,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
		},
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestJWTIdentity_ResolvesValidToken(t *testing.T) {
	req := require.New(t)
	provider := newJWTIdentity("very-secret-key")

	token := signToken(t, "very-secret-key", "u1", "abcd", time.Hour)
	ident, err := provider.Resolve(context.Background(), token)

	req.NoError(err)
	req.Equal("u1", ident.UserID)
	req.Equal("ABCD", ident.RoomID, "room claim should be canonicalized")
}

func TestJWTIdentity_RejectsMissingToken(t *testing.T) {
	req := require.New(t)
	provider := newJWTIdentity("very-secret-key")

	_, err := provider.Resolve(context.Background(), "  ")

	req.ErrorIs(err, ErrBadToken)
}

func TestJWTIdentity_RejectsWrongSecret(t *testing.T) {
	req := require.New(t)
	provider := newJWTIdentity("very-secret-key")

	token := signToken(t, "some-other-key", "u1", "ABCD", time.Hour)
	_, err := provider.Resolve(context.Background(), token)

	req.ErrorIs(err, ErrBadToken)
}

func TestJWTIdentity_RejectsExpiredToken(t *testing.T) {
	req := require.New(t)
	provider := newJWTIdentity("very-secret-key")

	token := signToken(t, "very-secret-key", "u1", "ABCD", -time.Minute)
	_, err := provider.Resolve(context.Background(), token)

	req.ErrorIs(err, ErrBadToken)
}

func TestJWTIdentity_RejectsMissingClaims(t *testing.T) {
	req := require.New(t)
	provider := newJWTIdentity("very-secret-key")

	// No room claim
	_, err := provider.Resolve(context.Background(), signToken(t, "very-secret-key", "u1", "", time.Hour))
	req.ErrorIs(err, ErrBadToken)

	// No subject
	_, err = provider.Resolve(context.Background(), signToken(t, "very-secret-key", "", "ABCD", time.Hour))
	req.ErrorIs(err, ErrBadToken)
}

func TestBearerToken_HeaderWinsOverQuery(t *testing.T) {
	req := require.New(t)

	req.Equal("abc", bearerToken("Bearer abc", "xyz"))
	req.Equal("xyz", bearerToken("", "xyz"))
	req.Equal("xyz", bearerToken("Basic abc", "xyz"))
	req.Equal("", bearerToken("", ""))
}
