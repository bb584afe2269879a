package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// Identity is the result of resolving a bearer token: who the user is and
// which room their profile authorizes them to join.
type Identity struct {
	UserID string
	RoomID string
}

// IdentityProvider answers "who does this token belong to, and which room
// may they join". Resolution happens once per connection, at handshake time;
// any failure (including the provider being unreachable) refuses the
// connection.
type IdentityProvider interface {
	Resolve(ctx context.Context, token string) (Identity, error)
}

// jwtIdentity verifies HS256 bearer tokens carrying the user id in the
// standard subject claim and the authorized room code in a "room" claim.
type jwtIdentity struct {
	secret []byte
}

type loungeClaims struct {
	Room string `json:"room"`
	jwt.RegisteredClaims
}

func newJWTIdentity(secret string) *jwtIdentity {
	if secret == "" {
		panic("jwt secret cannot be empty")
	}
	return &jwtIdentity{secret: []byte(secret)}
}

func (j *jwtIdentity) Resolve(_ context.Context, token string) (Identity, error) {
	if strings.TrimSpace(token) == "" {
		return Identity{}, ErrBadToken
	}

	claims := &loungeClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return j.secret, nil
	})
	if err != nil || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrBadToken, err)
	}
	if claims.Subject == "" || claims.Room == "" {
		return Identity{}, fmt.Errorf("%w: missing sub or room claim", ErrBadToken)
	}

	return Identity{
		UserID: claims.Subject,
		RoomID: canonicalRoomID(claims.Room),
	}, nil
}

// bearerToken pulls the token out of the connection handshake. Browser
// websocket clients cannot set headers, so a token query parameter is
// accepted alongside the conventional Authorization header.
func bearerToken(authHeader, queryToken string) string {
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return queryToken
}
