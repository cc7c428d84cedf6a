package realtime

import (
	"context"

	"github.com/google/uuid"

	"chatmakere/internal/apperror"
)

// SessionManager binds connections to the rooms they have joined.
type SessionManager struct {
	hub    *Hub
	oracle *MembershipOracle
	typing *TypingRegistry
}

func NewSessionManager(hub *Hub, oracle *MembershipOracle, typing *TypingRegistry) *SessionManager {
	return &SessionManager{hub: hub, oracle: oracle, typing: typing}
}

// Join authorizes and subscribes conn to roomID. Joining a room twice is a
// no-op that reports newlyJoined=false.
func (s *SessionManager) Join(ctx context.Context, conn *Connection, roomID uuid.UUID) (bool, error) {
	if !s.oracle.IsMember(ctx, roomID, conn.UserID()) {
		return false, apperror.Authorization(msgNotMember)
	}
	newlyJoined := conn.addRoom(roomID)
	s.hub.Subscribe(roomID, conn)
	return newlyJoined, nil
}

// Leave unsubscribes conn from roomID and clears the user's typing flag
// there. It reports whether the typing set changed.
func (s *SessionManager) Leave(conn *Connection, roomID uuid.UUID) bool {
	conn.removeRoom(roomID)
	s.hub.Unsubscribe(roomID, conn)
	return s.typing.ClearUserInRoom(roomID, conn.UserID())
}

// LeaveAll drops every subscription of conn and returns the rooms whose
// typing set changed.
func (s *SessionManager) LeaveAll(conn *Connection) []uuid.UUID {
	for _, roomID := range conn.clearRooms() {
		s.hub.Unsubscribe(roomID, conn)
	}
	return s.typing.ClearUser(conn.UserID())
}
