package models

import (
	"time"

	"github.com/google/uuid"
)

// Room is a direct (two member, unnamed) or group conversation.
type Room struct {
	ID        uuid.UUID `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	CreatedBy uuid.UUID `db:"created_by" json:"created_by"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Membership links a user to a room.
type Membership struct {
	RoomID   uuid.UUID `db:"room_id" json:"room_id"`
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	IsAdmin  bool      `db:"is_admin" json:"is_admin"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}

// RoomMember is a membership joined with the member's public profile.
type RoomMember struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	IsAdmin   bool      `db:"is_admin" json:"is_admin"`
	Username  string    `db:"username" json:"username"`
	AvatarURL *string   `db:"avatar_url" json:"avatar_url"`
	IsOnline  bool      `db:"is_online" json:"is_online"`
}

// RoomDetail is a room with its members.
type RoomDetail struct {
	Room
	Members []RoomMember `json:"room_members"`
}

// RoomSummary is a room as listed for one user.
type RoomSummary struct {
	Room
	PeerID      *uuid.UUID   `db:"peer_id" json:"peer_id,omitempty"`
	Members     []RoomMember `db:"-" json:"room_members"`
	LastMessage *Message     `db:"-" json:"last_message"`
}

// CreateRoomParams describes a room to be created by CreatorID.
type CreateRoomParams struct {
	Name      *string
	IsGroup   bool
	AvatarURL *string
	CreatorID uuid.UUID
	MemberIDs []uuid.UUID
}
