package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject, name string, expiresAt time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"name": name,
		"exp":  expiresAt.Unix(),
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifyTokenSuccess(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", "alice", "Alice", time.Now().Add(time.Hour))

	identity, err := verifier.VerifyToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity.PartyID)
	assert.Equal(t, "Alice", identity.DisplayName)
}

func TestVerifyTokenWrongSecret(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "other-secret", "alice", "Alice", time.Now().Add(time.Hour))

	_, err := verifier.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenExpired(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", "alice", "Alice", time.Now().Add(-time.Hour))

	_, err := verifier.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenMissingSubject(t *testing.T) {
	verifier := NewJWTVerifier("secret")
	token := signToken(t, "secret", "", "Alice", time.Now().Add(time.Hour))

	_, err := verifier.VerifyToken(context.Background(), token)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestVerifyTokenGarbage(t *testing.T) {
	verifier := NewJWTVerifier("secret")

	_, err := verifier.VerifyToken(context.Background(), "not.a.token")
	require.ErrorIs(t, err, ErrInvalidToken)
}
