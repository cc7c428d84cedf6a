package realtime

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatmakere/internal/models"
	"chatmakere/internal/observability"
)

// Hub owns the connection table and the room subscriptions.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]*Connection
	rooms map[uuid.UUID]map[string]*Connection

	log       zerolog.Logger
	delivered atomic.Int64
	failed    atomic.Int64
	startedAt time.Time
}

// HubStats is a point-in-time view of the hub.
type HubStats struct {
	Connections int       `json:"connections"`
	Rooms       int       `json:"rooms"`
	Delivered   int64     `json:"delivered"`
	Failed      int64     `json:"failed"`
	StartedAt   time.Time `json:"started_at"`
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		conns:     make(map[string]*Connection),
		rooms:     make(map[uuid.UUID]map[string]*Connection),
		log:       logger,
		startedAt: time.Now(),
	}
}

// Register adds a connection to the table.
func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	h.conns[conn.ID] = conn
	h.mu.Unlock()
}

// Unregister removes a connection and all of its room subscriptions.
func (h *Hub) Unregister(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return false
	}
	delete(h.conns, conn.ID)
	for roomID, subs := range h.rooms {
		delete(subs, conn.ID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
	return true
}

// Subscribe adds conn to the room's audience. Unknown connections are ignored.
func (h *Hub) Subscribe(roomID uuid.UUID, conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.conns[conn.ID]; !ok {
		return false
	}
	subs, ok := h.rooms[roomID]
	if !ok {
		subs = make(map[string]*Connection)
		h.rooms[roomID] = subs
	}
	subs[conn.ID] = conn
	return true
}

func (h *Hub) Unsubscribe(roomID uuid.UUID, conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.rooms[roomID]; ok {
		delete(subs, conn.ID)
		if len(subs) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// SendTo delivers an event to a single connection.
func (h *Hub) SendTo(conn *Connection, event models.Event) bool {
	return h.deliver([]*Connection{conn}, event) == 1
}

// BroadcastRoom delivers an event to every subscriber of roomID except the
// given connection, which may be nil. It returns the number of deliveries.
func (h *Hub) BroadcastRoom(roomID uuid.UUID, event models.Event, except *Connection) int {
	h.mu.RLock()
	subs := h.rooms[roomID]
	targets := make([]*Connection, 0, len(subs))
	for _, conn := range subs {
		if except != nil && conn.ID == except.ID {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event)
}

// BroadcastAll delivers an event to every registered connection except one.
func (h *Hub) BroadcastAll(event models.Event, except *Connection) int {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		if except != nil && conn.ID == except.ID {
			continue
		}
		targets = append(targets, conn)
	}
	h.mu.RUnlock()

	return h.deliver(targets, event)
}

// Connections returns a snapshot of the registered connections.
func (h *Hub) Connections() []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns := make([]*Connection, 0, len(h.conns))
	for _, conn := range h.conns {
		conns = append(conns, conn)
	}
	return conns
}

// RoomSize returns the number of connections subscribed to roomID.
func (h *Hub) RoomSize(roomID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[roomID])
}

func (h *Hub) Stats() HubStats {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return HubStats{
		Connections: len(h.conns),
		Rooms:       len(h.rooms),
		Delivered:   h.delivered.Load(),
		Failed:      h.failed.Load(),
		StartedAt:   h.startedAt,
	}
}

// deliver runs outside the hub lock. A connection that fails to accept the
// event misses it; its transport is responsible for closing itself.
func (h *Hub) deliver(targets []*Connection, event models.Event) int {
	sent := 0
	for _, conn := range targets {
		if err := conn.send(event); err != nil {
			h.failed.Add(1)
			h.log.Debug().Err(err).
				Str("conn_id", conn.ID).
				Str("event", event.Name).
				Msg("realtime: delivery failed")
			continue
		}
		sent++
	}
	h.delivered.Add(int64(sent))
	observability.AddBroadcastDeliveries(event.Name, sent)
	return sent
}
