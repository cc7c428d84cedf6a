package models

import (
	"github.com/google/uuid"
)

// Outbound realtime event names.
const (
	EventRoomJoined         = "room_joined"
	EventUserJoinedRoom     = "user_joined_room"
	EventReceiveMessage     = "receive_message"
	EventUserTyping         = "user_typing"
	EventUserStoppedTyping  = "user_stopped_typing"
	EventMessageReadReceipt = "message_read_receipt"
	EventUserOnline         = "user_online"
	EventUserOffline        = "user_offline"
	EventError              = "error"
)

// Inbound realtime event names.
const (
	EventJoinRoom    = "join_room"
	EventLeaveRoom   = "leave_room"
	EventSendMessage = "send_message"
	EventTyping      = "typing"
	EventMessageRead = "message_read"
)

// Event is a single websocket frame.
type Event struct {
	Name string `json:"event"`
	Data any    `json:"data,omitempty"`
}

type RoomJoinedPayload struct {
	RoomID uuid.UUID `json:"roomId"`
}

type UserJoinedRoomPayload struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username"`
}

type ReceiveMessagePayload struct {
	RoomID  uuid.UUID `json:"roomId"`
	Message *Message  `json:"message"`
}

type TypingPayload struct {
	RoomID   uuid.UUID `json:"roomId"`
	UserID   uuid.UUID `json:"userId"`
	Username string    `json:"username,omitempty"`
}

type ReadReceiptPayload struct {
	MessageID uuid.UUID `json:"messageId"`
	RoomID    uuid.UUID `json:"roomId"`
	ReadBy    uuid.UUID `json:"readBy"`
}

type PresencePayload struct {
	UserID uuid.UUID `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
