package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"chatmakere/internal/auth"
	"chatmakere/internal/middleware"
	"chatmakere/internal/mocks"
	"chatmakere/internal/models"
	"chatmakere/internal/telemetry"
)

type harness struct {
	caller   auth.Identity
	users    *mocks.UserRepositoryMock
	rooms    *mocks.RoomRepositoryMock
	messages *mocks.MessageRepositoryMock
	profiles *fakeProfiles
	presence *fakePresence
	router   *gin.Engine
}

func newHarness(t *testing.T, audit *telemetry.AuditEmitter) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	h := &harness{
		caller:   auth.Identity{UserID: uuid.New(), Email: "me@example.com"},
		users:    new(mocks.UserRepositoryMock),
		rooms:    new(mocks.RoomRepositoryMock),
		messages: new(mocks.MessageRepositoryMock),
		presence: &fakePresence{online: map[uuid.UUID]bool{}},
	}
	h.profiles = &fakeProfiles{users: h.users}

	r := gin.New()
	api := r.Group("/api", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, h.caller.UserID)
		c.Set(middleware.IdentityKey, h.caller)
		c.Next()
	})
	RegisterAPIRoutes(api,
		NewProfileHandler(h.users, h.profiles),
		NewUserHandler(h.users, h.profiles, h.presence),
		NewRoomHandler(h.rooms, h.messages, audit),
	)
	h.router = r

	t.Cleanup(func() {
		h.users.AssertExpectations(t)
		h.rooms.AssertExpectations(t)
		h.messages.AssertExpectations(t)
	})
	return h
}

func (h *harness) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]json.RawMessage {
	t.Helper()
	var body map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

type fakeProfiles struct {
	users       *mocks.UserRepositoryMock
	mu          sync.Mutex
	invalidated []uuid.UUID
}

func (f *fakeProfiles) GetProfile(ctx context.Context, userID uuid.UUID) (models.User, error) {
	return f.users.GetUser(ctx, userID)
}

func (f *fakeProfiles) Invalidate(_ context.Context, userID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, userID)
	return nil
}

type fakePresence struct {
	online map[uuid.UUID]bool
}

func (p *fakePresence) IsOnline(userID uuid.UUID) bool { return p.online[userID] }

func (p *fakePresence) OnlineUsers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.online))
	for id := range p.online {
		ids = append(ids, id)
	}
	return ids
}
