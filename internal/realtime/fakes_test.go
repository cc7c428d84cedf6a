package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"chatmakere/internal/auth"
	"chatmakere/internal/models"
)

type fakeSink struct {
	mu     sync.Mutex
	events []models.Event
	closed bool
}

func (s *fakeSink) Send(event models.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSinkClosed
	}
	s.events = append(s.events, event)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *fakeSink) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSink) Events() []models.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Event(nil), s.events...)
}

func (s *fakeSink) Count(name string) int {
	n := 0
	for _, e := range s.Events() {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Names returns the names of received events, keeping only those listed.
func (s *fakeSink) Names(only ...string) []string {
	keep := make(map[string]bool, len(only))
	for _, name := range only {
		keep[name] = true
	}
	var names []string
	for _, e := range s.Events() {
		if len(keep) == 0 || keep[e.Name] {
			names = append(names, e.Name)
		}
	}
	return names
}

func (s *fakeSink) Last(name string) (models.Event, bool) {
	events := s.Events()
	for i := len(events) - 1; i >= 0; i-- {
		if events[i].Name == name {
			return events[i], true
		}
	}
	return models.Event{}, false
}

type fakeGateway struct {
	mu        sync.Mutex
	members   map[uuid.UUID]map[uuid.UUID]bool
	memberErr error
	insertErr error
	readErr   error
	messages  []models.Message
	touched   map[uuid.UUID]int
	presence  map[uuid.UUID]bool
	writes    int
	reads     []uuid.UUID
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		members:  make(map[uuid.UUID]map[uuid.UUID]bool),
		touched:  make(map[uuid.UUID]int),
		presence: make(map[uuid.UUID]bool),
	}
}

func (g *fakeGateway) addMember(roomID uuid.UUID, userIDs ...uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.members[roomID] == nil {
		g.members[roomID] = make(map[uuid.UUID]bool)
	}
	for _, id := range userIDs {
		g.members[roomID][id] = true
	}
}

func (g *fakeGateway) revoke(roomID, userID uuid.UUID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.members[roomID], userID)
}

func (g *fakeGateway) IsMember(_ context.Context, roomID, userID uuid.UUID) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.memberErr != nil {
		return false, g.memberErr
	}
	return g.members[roomID][userID], nil
}

func (g *fakeGateway) InsertMessage(_ context.Context, roomID, senderID uuid.UUID, text string) (*models.Message, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.insertErr != nil {
		return nil, g.insertErr
	}
	msg := models.Message{
		ID:          uuid.New(),
		RoomID:      roomID,
		SenderID:    senderID,
		MessageText: text,
		CreatedAt:   time.Now(),
	}
	g.messages = append(g.messages, msg)
	return &msg, nil
}

func (g *fakeGateway) TouchRoom(_ context.Context, roomID uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.touched[roomID]++
	return nil
}

func (g *fakeGateway) SetUserOnline(_ context.Context, userID uuid.UUID, online bool, _ time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.presence[userID] = online
	g.writes++
	return nil
}

func (g *fakeGateway) MarkMessageRead(_ context.Context, messageID, _ uuid.UUID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.readErr != nil {
		return g.readErr
	}
	g.reads = append(g.reads, messageID)
	return nil
}

func (g *fakeGateway) snapshot() (messages []models.Message, writes int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]models.Message(nil), g.messages...), g.writes
}

func (g *fakeGateway) touchCount(roomID uuid.UUID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.touched[roomID]
}

func (g *fakeGateway) presenceOf(userID uuid.UUID) (bool, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	online, ok := g.presence[userID]
	return online, ok
}

type staticValidator map[string]auth.Identity

func (v staticValidator) ValidateToken(_ context.Context, token string) (auth.Identity, error) {
	identity, ok := v[token]
	if !ok {
		return auth.Identity{}, auth.ErrInvalidToken
	}
	return identity, nil
}

type fakeLimiter struct {
	allowed bool
	err     error
}

func (l fakeLimiter) Allow(context.Context, uuid.UUID) (bool, error) {
	return l.allowed, l.err
}

func newTestCore(t *testing.T, gw *fakeGateway, opts Options) *Core {
	t.Helper()
	opts.Logger = zerolog.Nop()
	core := NewCore(gw, opts)
	t.Cleanup(func() {
		_ = core.presence.Close(context.Background())
	})
	return core
}

func connect(t *testing.T, core *Core, userID uuid.UUID, name string) (*Connection, *fakeSink) {
	t.Helper()
	sink := &fakeSink{}
	conn := NewConnection(auth.Identity{UserID: userID, Username: name}, sink, ConnInfo{RequestID: "req-" + name})
	require.NoError(t, core.Connect(context.Background(), conn))
	return conn, sink
}

func frame(t *testing.T, event string, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(map[string]any{"event": event, "data": data})
	require.NoError(t, err)
	return raw
}

var errStoreDown = errors.New("store down")
