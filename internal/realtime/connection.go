package realtime

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"chatmakere/internal/auth"
	"chatmakere/internal/models"
)

// ErrSinkClosed is returned by sinks that can no longer accept events.
var ErrSinkClosed = errors.New("sink closed")

// Sink delivers outbound events to a single transport session. Send must not
// block; a sink that cannot keep up closes itself and returns an error.
type Sink interface {
	Send(event models.Event) error
	Close() error
}

// State is the lifecycle state of a Connection.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ConnInfo is transport metadata captured during the handshake.
type ConnInfo struct {
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Connection is one live transport session owned by the Hub.
type Connection struct {
	ID       string
	Identity auth.Identity
	Info     ConnInfo

	sink Sink

	mu    sync.Mutex
	state State
	rooms map[uuid.UUID]struct{}
}

// NewConnection wraps an authenticated transport session. The connection
// stays in StateConnecting until the core registers it.
func NewConnection(identity auth.Identity, sink Sink, info ConnInfo) *Connection {
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	return &Connection{
		ID:       NewConnID(),
		Identity: identity,
		Info:     info,
		sink:     sink,
		state:    StateConnecting,
		rooms:    make(map[uuid.UUID]struct{}),
	}
}

// NewConnID returns a lexically sortable connection id.
func NewConnID() string {
	return ulid.Make().String()
}

// UserID is shorthand for the owning user's id.
func (c *Connection) UserID() uuid.UUID {
	return c.Identity.UserID
}

// State reports Active while the connection has joined at least one room.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateAuthenticated && len(c.rooms) > 0 {
		return StateActive
	}
	return c.state
}

// HasJoined reports whether the connection is subscribed to roomID.
func (c *Connection) HasJoined(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.rooms[roomID]
	return ok
}

// JoinedRooms returns a snapshot of the joined room ids.
func (c *Connection) JoinedRooms() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	return rooms
}

func (c *Connection) markAuthenticated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return false
	}
	c.state = StateAuthenticated
	return true
}

// markClosed moves the connection to StateClosed and returns the state it
// was in before. A second call returns StateClosed.
func (c *Connection) markClosed() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev := c.state
	c.state = StateClosed
	return prev
}

func (c *Connection) addRoom(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	if _, ok := c.rooms[roomID]; ok {
		return false
	}
	c.rooms[roomID] = struct{}{}
	return true
}

func (c *Connection) removeRoom(roomID uuid.UUID) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.rooms[roomID]; !ok {
		return false
	}
	delete(c.rooms, roomID)
	return true
}

func (c *Connection) clearRooms() []uuid.UUID {
	c.mu.Lock()
	defer c.mu.Unlock()
	rooms := make([]uuid.UUID, 0, len(c.rooms))
	for id := range c.rooms {
		rooms = append(rooms, id)
	}
	c.rooms = make(map[uuid.UUID]struct{})
	return rooms
}

func (c *Connection) send(event models.Event) error {
	if c.sink == nil {
		return ErrSinkClosed
	}
	return c.sink.Send(event)
}
