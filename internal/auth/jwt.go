package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims are the claims carried by provider access tokens.
type Claims struct {
	Email string `json:"email"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// JWTValidator verifies HS256 provider tokens locally with the shared secret.
type JWTValidator struct {
	secret   []byte
	audience string
}

// NewJWTValidator builds a validator; an empty audience disables the aud check.
func NewJWTValidator(secret, audience string) *JWTValidator {
	return &JWTValidator{secret: []byte(secret), audience: audience}
}

func (v *JWTValidator) ValidateToken(ctx context.Context, token string) (Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	var claims Claims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return Identity{}, ErrInvalidToken
	}

	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: subject is not a uuid", ErrInvalidToken)
	}
	return Identity{UserID: userID, Email: claims.Email}, nil
}
