package models

import (
	"time"

	"github.com/google/uuid"
)

// User is a chat profile keyed by the auth provider's user id.
type User struct {
	ID        uuid.UUID  `db:"id" json:"id"`
	Username  string     `db:"username" json:"username"`
	Email     string     `db:"email" json:"email,omitempty"`
	AvatarURL *string    `db:"avatar_url" json:"avatar_url"`
	IsOnline  bool       `db:"is_online" json:"is_online"`
	LastSeen  *time.Time `db:"last_seen" json:"last_seen,omitempty"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// UserSummary is the public projection of a user embedded in rooms and messages.
type UserSummary struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	IsOnline  bool      `db:"is_online" json:"is_online"`
}
