package realtime

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"chatmakere/internal/observability"
)

// PresenceStore persists the online/last-seen projection of a user.
type PresenceStore interface {
	SetUserOnline(ctx context.Context, userID uuid.UUID, online bool, seenAt time.Time) error
}

type presenceUpdate struct {
	online bool
	seenAt time.Time
}

// PresenceRegistry tracks live connections per user. A user is online while
// at least one connection is registered.
//
// Durable writes go through a single background writer. Pending updates are
// coalesced per user under the same lock that records the transition, so the
// stored projection always converges on the latest in-memory state.
//
// Transitions are serialized by transitions, which is held while the
// announce callback runs so observers see online and offline in order.
type PresenceRegistry struct {
	transitions sync.Mutex
	mu          sync.RWMutex
	conns       map[uuid.UUID]map[string]struct{}

	store   PresenceStore
	pending map[uuid.UUID]presenceUpdate
	notify  chan struct{}
	stop    chan struct{}
	done    chan struct{}
	once    sync.Once
	log     zerolog.Logger
}

// NewPresenceRegistry starts the background writer when store is non-nil.
func NewPresenceRegistry(store PresenceStore, logger zerolog.Logger) *PresenceRegistry {
	p := &PresenceRegistry{
		conns:   make(map[uuid.UUID]map[string]struct{}),
		store:   store,
		pending: make(map[uuid.UUID]presenceUpdate),
		notify:  make(chan struct{}, 1),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		log:     logger,
	}
	if store != nil {
		go p.writer()
	} else {
		close(p.done)
	}
	return p
}

// AddConnection records connID for userID and reports whether this was the
// user's first live connection. announce, when non-nil, runs on that
// transition before any later transition of the registry.
func (p *PresenceRegistry) AddConnection(userID uuid.UUID, connID string, announce func()) bool {
	p.transitions.Lock()
	defer p.transitions.Unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		set = make(map[string]struct{})
		p.conns[userID] = set
	}
	set[connID] = struct{}{}
	becameOnline := !ok
	if becameOnline {
		p.enqueueLocked(userID, true)
	}
	online := len(p.conns)
	p.mu.Unlock()

	observability.SetOnlineUsers(online)
	if becameOnline && announce != nil {
		announce()
	}
	return becameOnline
}

// RemoveConnection drops connID and reports whether the user went offline.
// Unknown connections are ignored. announce runs as in AddConnection.
func (p *PresenceRegistry) RemoveConnection(userID uuid.UUID, connID string, announce func()) bool {
	p.transitions.Lock()
	defer p.transitions.Unlock()

	p.mu.Lock()
	set, ok := p.conns[userID]
	if !ok {
		p.mu.Unlock()
		return false
	}
	if _, exists := set[connID]; !exists {
		p.mu.Unlock()
		return false
	}
	delete(set, connID)
	becameOffline := len(set) == 0
	if becameOffline {
		delete(p.conns, userID)
		p.enqueueLocked(userID, false)
	}
	online := len(p.conns)
	p.mu.Unlock()

	observability.SetOnlineUsers(online)
	if becameOffline && announce != nil {
		announce()
	}
	return becameOffline
}

func (p *PresenceRegistry) IsOnline(userID uuid.UUID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID]) > 0
}

// ConnectionCount returns the number of live connections of userID.
func (p *PresenceRegistry) ConnectionCount(userID uuid.UUID) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.conns[userID])
}

func (p *PresenceRegistry) OnlineUsers() []uuid.UUID {
	p.mu.RLock()
	defer p.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(p.conns))
	for id := range p.conns {
		users = append(users, id)
	}
	return users
}

// Close stops the writer after flushing pending updates or when ctx ends.
func (p *PresenceRegistry) Close(ctx context.Context) error {
	p.once.Do(func() { close(p.stop) })
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *PresenceRegistry) enqueueLocked(userID uuid.UUID, online bool) {
	if p.store == nil {
		return
	}
	p.pending[userID] = presenceUpdate{online: online, seenAt: time.Now().UTC()}
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *PresenceRegistry) writer() {
	defer close(p.done)
	for {
		select {
		case <-p.notify:
			p.flush()
		case <-p.stop:
			p.flush()
			return
		}
	}
}

func (p *PresenceRegistry) flush() {
	p.mu.Lock()
	batch := p.pending
	p.pending = make(map[uuid.UUID]presenceUpdate)
	p.mu.Unlock()

	for userID, update := range batch {
		if err := p.store.SetUserOnline(context.Background(), userID, update.online, update.seenAt); err != nil {
			p.log.Error().Err(err).
				Str("user_id", userID.String()).
				Bool("online", update.online).
				Msg("presence: failed to persist status")
		}
	}
}
