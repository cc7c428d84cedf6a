package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

func signToken(t *testing.T, method jwt.SigningMethod, key any, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return token
}

func validClaims(sub string) Claims {
	return Claims{
		Email: "alice@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub,
			Audience:  jwt.ClaimStrings{"authenticated"},
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
}

func TestJWTValidatorAcceptsProviderToken(t *testing.T) {
	userID := uuid.New()
	token := signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims(userID.String()))

	identity, err := NewJWTValidator(testSecret, "authenticated").ValidateToken(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, userID, identity.UserID)
	assert.Equal(t, "alice@example.com", identity.Email)
	assert.Equal(t, "alice@example.com", identity.DisplayName())
}

func TestJWTValidatorRejects(t *testing.T) {
	userID := uuid.New().String()
	v := NewJWTValidator(testSecret, "authenticated")

	expired := validClaims(userID)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	noExpiry := validClaims(userID)
	noExpiry.ExpiresAt = nil

	wrongAudience := validClaims(userID)
	wrongAudience.Audience = jwt.ClaimStrings{"anon"}

	cases := map[string]string{
		"wrong secret":   signToken(t, jwt.SigningMethodHS256, []byte("another-secret-of-sufficient-length!!"), validClaims(userID)),
		"wrong method":   signToken(t, jwt.SigningMethodHS512, []byte(testSecret), validClaims(userID)),
		"expired":        signToken(t, jwt.SigningMethodHS256, []byte(testSecret), expired),
		"no expiry":      signToken(t, jwt.SigningMethodHS256, []byte(testSecret), noExpiry),
		"wrong audience": signToken(t, jwt.SigningMethodHS256, []byte(testSecret), wrongAudience),
		"non uuid sub":   signToken(t, jwt.SigningMethodHS256, []byte(testSecret), validClaims("user-42")),
		"garbage":        "not.a.jwt",
	}

	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := v.ValidateToken(context.Background(), token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestBearerToken(t *testing.T) {
	token, ok := BearerToken("Bearer abc.def")
	assert.True(t, ok)
	assert.Equal(t, "abc.def", token)

	token, ok = BearerToken("bearer   xyz")
	assert.True(t, ok)
	assert.Equal(t, "xyz", token)

	for _, header := range []string{"", "Bearer", "Basic abc", "Bearer  "} {
		_, ok := BearerToken(header)
		assert.False(t, ok, header)
	}
}
