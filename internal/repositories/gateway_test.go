package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"chatmakere/internal/mocks"
	"chatmakere/internal/models"
	"chatmakere/internal/realtime"
	"chatmakere/internal/repositories"
)

var _ realtime.Gateway = (*repositories.Gateway)(nil)

func TestGatewayDelegates(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	rooms := new(mocks.RoomRepositoryMock)
	messages := new(mocks.MessageRepositoryMock)
	gw := repositories.NewGateway(users, rooms, messages)
	ctx := context.Background()
	roomID, userID, msgID := uuid.New(), uuid.New(), uuid.New()
	seen := time.Now()

	rooms.On("IsMember", mock.Anything, roomID, userID).Return(true, nil).Once()
	rooms.On("TouchRoom", mock.Anything, roomID).Return(nil).Once()
	users.On("SetUserOnline", mock.Anything, userID, false, seen).Return(nil).Once()
	messages.On("CreateMessage", mock.Anything, roomID, userID, "hi").
		Return(models.Message{ID: msgID, RoomID: roomID, SenderID: userID, MessageText: "hi"}, nil).Once()
	messages.On("MarkRead", mock.Anything, msgID, roomID).Return(repositories.ErrMessageNotFound).Once()

	ok, err := gw.IsMember(ctx, roomID, userID)
	require.NoError(t, err)
	assert.True(t, ok)

	msg, err := gw.InsertMessage(ctx, roomID, userID, "hi")
	require.NoError(t, err)
	assert.Equal(t, msgID, msg.ID)

	require.NoError(t, gw.TouchRoom(ctx, roomID))
	require.NoError(t, gw.SetUserOnline(ctx, userID, false, seen))
	assert.ErrorIs(t, gw.MarkMessageRead(ctx, msgID, roomID), repositories.ErrMessageNotFound)

	users.AssertExpectations(t)
	rooms.AssertExpectations(t)
	messages.AssertExpectations(t)
}

func TestGatewayInsertMessageError(t *testing.T) {
	messages := new(mocks.MessageRepositoryMock)
	gw := repositories.NewGateway(nil, nil, messages)
	messages.On("CreateMessage", mock.Anything, mock.Anything, mock.Anything, "x").Return(nil, assert.AnError).Once()

	msg, err := gw.InsertMessage(context.Background(), uuid.New(), uuid.New(), "x")
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, assert.AnError)
}
