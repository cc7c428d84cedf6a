// Package auth validates bearer credentials issued by the external auth
// provider and turns them into an Identity.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// ErrInvalidToken is returned for any credential the provider rejects.
var ErrInvalidToken = errors.New("invalid token")

// Identity is the authenticated principal behind a request or connection.
type Identity struct {
	UserID   uuid.UUID
	Email    string
	Username string
}

// DisplayName is the name shown to other users in realtime events.
func (i Identity) DisplayName() string {
	if i.Username != "" {
		return i.Username
	}
	return i.Email
}

// TokenValidator validates a raw bearer token.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (Identity, error)
}

// BearerToken extracts the token from an "Authorization: Bearer <token>"
// header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
