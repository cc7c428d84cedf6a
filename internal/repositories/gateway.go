package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"chatmakere/internal/models"
)

// Gateway adapts the repositories to the persistence surface of the
// realtime core.
type Gateway struct {
	Users    UserRepository
	Rooms    RoomRepository
	Messages MessageRepository
}

func NewGateway(users UserRepository, rooms RoomRepository, messages MessageRepository) *Gateway {
	return &Gateway{Users: users, Rooms: rooms, Messages: messages}
}

func (g *Gateway) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	return g.Rooms.IsMember(ctx, roomID, userID)
}

func (g *Gateway) InsertMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (*models.Message, error) {
	msg, err := g.Messages.CreateMessage(ctx, roomID, senderID, text)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (g *Gateway) TouchRoom(ctx context.Context, roomID uuid.UUID) error {
	return g.Rooms.TouchRoom(ctx, roomID)
}

func (g *Gateway) SetUserOnline(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error {
	return g.Users.SetUserOnline(ctx, userID, online, seenAt)
}

func (g *Gateway) MarkMessageRead(ctx context.Context, messageID, roomID uuid.UUID) error {
	return g.Messages.MarkRead(ctx, messageID, roomID)
}
