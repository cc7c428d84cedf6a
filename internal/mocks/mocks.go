package mocks

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"chatmakere/internal/auth"
	"chatmakere/internal/models"
	"chatmakere/internal/repositories"
)

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	args := m.Called(ctx, user)
	var created models.User
	if val := args.Get(0); val != nil {
		created = val.(models.User)
	}
	return created, args.Error(1)
}

func (m *UserRepositoryMock) GetUser(ctx context.Context, userID uuid.UUID) (models.User, error) {
	args := m.Called(ctx, userID)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, userID uuid.UUID, username, avatarURL *string) (models.User, error) {
	args := m.Called(ctx, userID, username, avatarURL)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) SearchUsers(ctx context.Context, query string, excludeID uuid.UUID, limit int) ([]models.UserSummary, error) {
	args := m.Called(ctx, query, excludeID, limit)
	var users []models.UserSummary
	if val := args.Get(0); val != nil {
		users = val.([]models.UserSummary)
	}
	return users, args.Error(1)
}

func (m *UserRepositoryMock) SetUserOnline(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error {
	args := m.Called(ctx, userID, online, seenAt)
	return args.Error(0)
}

type RoomRepositoryMock struct {
	mock.Mock
}

func (m *RoomRepositoryMock) IsMember(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) IsAdmin(ctx context.Context, roomID, userID uuid.UUID) (bool, error) {
	args := m.Called(ctx, roomID, userID)
	return args.Bool(0), args.Error(1)
}

func (m *RoomRepositoryMock) FindDirectRoom(ctx context.Context, userA, userB uuid.UUID) (models.Room, error) {
	args := m.Called(ctx, userA, userB)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Error(1)
}

func (m *RoomRepositoryMock) CreateRoom(ctx context.Context, params models.CreateRoomParams) (models.Room, bool, error) {
	args := m.Called(ctx, params)
	var room models.Room
	if val := args.Get(0); val != nil {
		room = val.(models.Room)
	}
	return room, args.Bool(1), args.Error(2)
}

func (m *RoomRepositoryMock) GetRoom(ctx context.Context, roomID uuid.UUID) (models.RoomDetail, error) {
	args := m.Called(ctx, roomID)
	var detail models.RoomDetail
	if val := args.Get(0); val != nil {
		detail = val.(models.RoomDetail)
	}
	return detail, args.Error(1)
}

func (m *RoomRepositoryMock) ListRooms(ctx context.Context, userID uuid.UUID) ([]models.RoomSummary, error) {
	args := m.Called(ctx, userID)
	var rooms []models.RoomSummary
	if val := args.Get(0); val != nil {
		rooms = val.([]models.RoomSummary)
	}
	return rooms, args.Error(1)
}

func (m *RoomRepositoryMock) AddMembers(ctx context.Context, roomID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	args := m.Called(ctx, roomID, userIDs)
	var added []uuid.UUID
	if val := args.Get(0); val != nil {
		added = val.([]uuid.UUID)
	}
	return added, args.Error(1)
}

func (m *RoomRepositoryMock) DirectPeer(ctx context.Context, roomID, userID uuid.UUID) (uuid.UUID, error) {
	args := m.Called(ctx, roomID, userID)
	var peer uuid.UUID
	if val := args.Get(0); val != nil {
		peer = val.(uuid.UUID)
	}
	return peer, args.Error(1)
}

func (m *RoomRepositoryMock) TouchRoom(ctx context.Context, roomID uuid.UUID) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

func (m *RoomRepositoryMock) DeleteRoom(ctx context.Context, roomID uuid.UUID) error {
	args := m.Called(ctx, roomID)
	return args.Error(0)
}

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) CreateMessage(ctx context.Context, roomID, senderID uuid.UUID, text string) (models.Message, error) {
	args := m.Called(ctx, roomID, senderID, text)
	var msg models.Message
	if val := args.Get(0); val != nil {
		msg = val.(models.Message)
	}
	return msg, args.Error(1)
}

func (m *MessageRepositoryMock) ListMessages(ctx context.Context, roomID uuid.UUID, before *time.Time, limit int) ([]models.Message, error) {
	args := m.Called(ctx, roomID, before, limit)
	var msgs []models.Message
	if val := args.Get(0); val != nil {
		msgs = val.([]models.Message)
	}
	return msgs, args.Error(1)
}

func (m *MessageRepositoryMock) MarkRead(ctx context.Context, messageID, roomID uuid.UUID) error {
	args := m.Called(ctx, messageID, roomID)
	return args.Error(0)
}

type TokenValidatorMock struct {
	mock.Mock
}

func (m *TokenValidatorMock) ValidateToken(ctx context.Context, token string) (auth.Identity, error) {
	args := m.Called(ctx, token)
	var identity auth.Identity
	if val := args.Get(0); val != nil {
		identity = val.(auth.Identity)
	}
	return identity, args.Error(1)
}

var (
	_ repositories.UserRepository    = (*UserRepositoryMock)(nil)
	_ repositories.RoomRepository    = (*RoomRepositoryMock)(nil)
	_ repositories.MessageRepository = (*MessageRepositoryMock)(nil)
	_ auth.TokenValidator            = (*TokenValidatorMock)(nil)
)
