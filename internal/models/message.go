package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a text message posted to a room.
type Message struct {
	ID          uuid.UUID `db:"id" json:"id"`
	RoomID      uuid.UUID `db:"room_id" json:"room_id"`
	SenderID    uuid.UUID `db:"sender_id" json:"sender_id"`
	MessageText string    `db:"message_text" json:"message_text"`
	IsRead      bool      `db:"is_read" json:"is_read"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`

	Sender *UserSummary `db:"-" json:"users,omitempty"`
}
