package realtime

import (
	"sync"

	"github.com/google/uuid"
)

// TypingRegistry holds the ephemeral room -> typing users map.
type TypingRegistry struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]map[uuid.UUID]struct{}
}

func NewTypingRegistry() *TypingRegistry {
	return &TypingRegistry{rooms: make(map[uuid.UUID]map[uuid.UUID]struct{})}
}

// SetTyping updates the flag and reports whether the set changed.
func (t *TypingRegistry) SetTyping(roomID, userID uuid.UUID, isTyping bool) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !isTyping {
		return t.removeLocked(roomID, userID)
	}
	users, ok := t.rooms[roomID]
	if !ok {
		users = make(map[uuid.UUID]struct{})
		t.rooms[roomID] = users
	}
	if _, exists := users[userID]; exists {
		return false
	}
	users[userID] = struct{}{}
	return true
}

func (t *TypingRegistry) ClearUserInRoom(roomID, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.removeLocked(roomID, userID)
}

// ClearUser removes userID from every room and returns the rooms it was
// typing in.
func (t *TypingRegistry) ClearUser(userID uuid.UUID) []uuid.UUID {
	t.mu.Lock()
	defer t.mu.Unlock()
	var changed []uuid.UUID
	for roomID := range t.rooms {
		if t.removeLocked(roomID, userID) {
			changed = append(changed, roomID)
		}
	}
	return changed
}

func (t *TypingRegistry) IsTyping(roomID, userID uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.rooms[roomID][userID]
	return ok
}

// Rooms returns the number of rooms with at least one typing user.
func (t *TypingRegistry) Rooms() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rooms)
}

func (t *TypingRegistry) removeLocked(roomID, userID uuid.UUID) bool {
	users, ok := t.rooms[roomID]
	if !ok {
		return false
	}
	if _, exists := users[userID]; !exists {
		return false
	}
	delete(users, userID)
	if len(users) == 0 {
		delete(t.rooms, roomID)
	}
	return true
}
